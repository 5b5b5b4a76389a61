package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BSON field names of im_c2c_msg_record. Every other package refers to these.
const (
	FieldID            = "_id"
	FieldChatID        = "chatId"
	FieldMsgID         = "msgId"
	FieldFromUserID    = "fromUserId"
	FieldToUserID      = "toUserId"
	FieldMsgContent    = "msgContent"
	FieldMsgFormat     = "msgFormat"
	FieldMsgStatus     = "msgStatus"
	FieldWithdrawFlag  = "withdrawFlag"
	FieldMsgCreateTime = "msgCreateTime"
	FieldRetryCount    = "retryCount"
	FieldCreateTime    = "createTime"
	FieldUpdateTime    = "updateTime"
)

// MsgFormat is the payload kind of a message. Non-text formats carry a
// reference in MsgContent, never raw bytes.
type MsgFormat int32

const (
	FormatText     MsgFormat = 1
	FormatAudio    MsgFormat = 2
	FormatLocation MsgFormat = 3
	FormatImage    MsgFormat = 4
	FormatVideo    MsgFormat = 5
	FormatFile     MsgFormat = 6
	FormatEmoji    MsgFormat = 7
	FormatLink     MsgFormat = 8
	FormatSystem   MsgFormat = 9
)

var formatNames = map[MsgFormat]string{
	FormatText:     "text",
	FormatAudio:    "audio",
	FormatLocation: "location",
	FormatImage:    "image",
	FormatVideo:    "video",
	FormatFile:     "file",
	FormatEmoji:    "emoji",
	FormatLink:     "link",
	FormatSystem:   "system",
}

func (f MsgFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

func (f MsgFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "format(" + strconv.Itoa(int(f)) + ")"
}

// MsgStatus codes are ordered the same way as the delivery lifecycle, so a
// forward transition is a strictly greater code.
type MsgStatus int32

const (
	StatusPending   MsgStatus = 1
	StatusSent      MsgStatus = 2
	StatusDelivered MsgStatus = 3
	StatusRead      MsgStatus = 4
)

var statusNames = map[MsgStatus]string{
	StatusPending:   "pending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
}

func (s MsgStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s MsgStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// CanAdvanceTo reports whether s -> next is a forward lifecycle step.
func (s MsgStatus) CanAdvanceTo(next MsgStatus) bool {
	return s.Valid() && next.Valid() && next > s
}

type WithdrawFlag int32

const (
	WithdrawNormal    WithdrawFlag = 0
	WithdrawWithdrawn WithdrawFlag = 1
)

var withdrawNames = map[WithdrawFlag]string{
	WithdrawNormal:    "normal",
	WithdrawWithdrawn: "withdrawn",
}

func (w WithdrawFlag) Valid() bool {
	_, ok := withdrawNames[w]
	return ok
}

func (w WithdrawFlag) String() string {
	if name, ok := withdrawNames[w]; ok {
		return name
	}
	return "withdraw(" + strconv.Itoa(int(w)) + ")"
}

// MessageRecord is one document of im_c2c_msg_record. The collection is
// sharded on a hash of ChatID.
type MessageRecord struct {
	ID            string       `bson:"_id" json:"id"`
	ChatID        string       `bson:"chatId" json:"chatId"`
	MsgID         string       `bson:"msgId" json:"msgId"`
	FromUserID    string       `bson:"fromUserId" json:"fromUserId"`
	ToUserID      string       `bson:"toUserId" json:"toUserId"`
	MsgContent    string       `bson:"msgContent" json:"msgContent"`
	MsgFormat     MsgFormat    `bson:"msgFormat" json:"msgFormat"`
	MsgStatus     MsgStatus    `bson:"msgStatus" json:"msgStatus"`
	WithdrawFlag  WithdrawFlag `bson:"withdrawFlag" json:"withdrawFlag"`
	MsgCreateTime int64        `bson:"msgCreateTime" json:"msgCreateTime"` // epoch millis
	RetryCount    int32        `bson:"retryCount" json:"retryCount"`
	CreateTime    time.Time    `bson:"createTime" json:"createTime"`
	UpdateTime    time.Time    `bson:"updateTime" json:"updateTime"`
}

// DocumentID builds the _id of a record: chatId_msgId.
func DocumentID(chatID, msgID string) string {
	return chatID + "_" + msgID
}

// Validate checks the write-side schema rules. Violations wrap
// ErrInvalidFieldValue.
func (m *MessageRecord) Validate() error {
	switch {
	case strings.TrimSpace(m.ChatID) == "":
		return fieldError(FieldChatID, "must not be empty")
	case strings.TrimSpace(m.MsgID) == "":
		return fieldError(FieldMsgID, "must not be empty")
	case m.MsgCreateTime <= 0:
		return fieldError(FieldMsgCreateTime, "must be a positive epoch millis value")
	case !m.MsgFormat.Valid():
		return fieldError(FieldMsgFormat, m.MsgFormat.String())
	case !m.MsgStatus.Valid():
		return fieldError(FieldMsgStatus, m.MsgStatus.String())
	case !m.WithdrawFlag.Valid():
		return fieldError(FieldWithdrawFlag, m.WithdrawFlag.String())
	}
	if m.ID != "" && m.ID != DocumentID(m.ChatID, m.MsgID) {
		return fieldError(FieldID, "must be chatId_msgId")
	}
	return nil
}

// Normalize fills the derived and audit fields before a first insert.
func (m *MessageRecord) Normalize(now time.Time) {
	m.ID = DocumentID(m.ChatID, m.MsgID)
	if m.MsgStatus == 0 {
		m.MsgStatus = StatusPending
	}
	if m.CreateTime.IsZero() {
		m.CreateTime = now
	}
	m.UpdateTime = now
}

func ParseMsgFormat(s string) (MsgFormat, error) {
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !MsgFormat(n).Valid() {
		return 0, fieldError(FieldMsgFormat, s)
	}
	return MsgFormat(n), nil
}

func ParseMsgStatus(s string) (MsgStatus, error) {
	for st, name := range statusNames {
		if strings.EqualFold(s, name) {
			return st, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !MsgStatus(n).Valid() {
		return 0, fieldError(FieldMsgStatus, s)
	}
	return MsgStatus(n), nil
}

func ParseWithdrawFlag(s string) (WithdrawFlag, error) {
	for w, name := range withdrawNames {
		if strings.EqualFold(s, name) {
			return w, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !WithdrawFlag(n).Valid() {
		return 0, fieldError(FieldWithdrawFlag, s)
	}
	return WithdrawFlag(n), nil
}

func fieldError(field, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidFieldValue, field, detail)
}
