package planner

import (
	"encoding/base64"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"msgstore/models"
)

// Cursor is the position of the last record of a page in the
// (msgCreateTime desc, msgId desc) order. The next page holds only records
// strictly after it, so rows inserted between page fetches can neither
// shift nor repeat what the reader has already seen.
type Cursor struct {
	CreateTime int64  `bson:"t"`
	MsgID      string `bson:"m"`
}

// CursorAt returns the cursor positioned on rec.
func CursorAt(rec models.MessageRecord) Cursor {
	return Cursor{CreateTime: rec.MsgCreateTime, MsgID: rec.MsgID}
}

// Admits reports whether a record at (createTime, msgID) comes after the
// cursor in newest-first order.
func (c Cursor) Admits(createTime int64, msgID string) bool {
	if createTime != c.CreateTime {
		return createTime < c.CreateTime
	}
	return msgID < c.MsgID
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, err := bson.Marshal(c)
	if err != nil {
		// a two-field struct of int64 and string always marshals
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", models.ErrInvalidCursor, err)
	}
	var c Cursor
	if err := bson.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", models.ErrInvalidCursor, err)
	}
	if c.CreateTime <= 0 || c.MsgID == "" {
		return Cursor{}, fmt.Errorf("%w: incomplete position", models.ErrInvalidCursor)
	}
	return c, nil
}
