package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() MessageRecord {
	return MessageRecord{
		ChatID:        "1-100-200",
		MsgID:         "m1",
		FromUserID:    "100",
		ToUserID:      "200",
		MsgContent:    "hello",
		MsgFormat:     FormatText,
		MsgStatus:     StatusSent,
		WithdrawFlag:  WithdrawNormal,
		MsgCreateTime: 1700000000000,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MessageRecord)
		field  string
	}{
		{name: "valid record", mutate: func(*MessageRecord) {}},
		{name: "empty chatId", mutate: func(m *MessageRecord) { m.ChatID = " " }, field: FieldChatID},
		{name: "empty msgId", mutate: func(m *MessageRecord) { m.MsgID = "" }, field: FieldMsgID},
		{name: "zero create time", mutate: func(m *MessageRecord) { m.MsgCreateTime = 0 }, field: FieldMsgCreateTime},
		{name: "unknown format", mutate: func(m *MessageRecord) { m.MsgFormat = 42 }, field: FieldMsgFormat},
		{name: "unknown status", mutate: func(m *MessageRecord) { m.MsgStatus = 9 }, field: FieldMsgStatus},
		{name: "unknown withdraw flag", mutate: func(m *MessageRecord) { m.WithdrawFlag = 2 }, field: FieldWithdrawFlag},
		{name: "mismatched document id", mutate: func(m *MessageRecord) { m.ID = "other" }, field: FieldID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			err := rec.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidFieldValue)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rec := validRecord()
	rec.MsgStatus = 0

	rec.Normalize(now)

	assert.Equal(t, "1-100-200_m1", rec.ID)
	assert.Equal(t, StatusPending, rec.MsgStatus)
	assert.Equal(t, now, rec.CreateTime)
	assert.Equal(t, now, rec.UpdateTime)
	assert.NoError(t, rec.Validate())
}

func TestCanAdvanceTo(t *testing.T) {
	assert.True(t, StatusPending.CanAdvanceTo(StatusSent))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusSent.CanAdvanceTo(MsgStatus(7)))
}

func TestParseEnums(t *testing.T) {
	st, err := ParseMsgStatus("READ")
	require.NoError(t, err)
	assert.Equal(t, StatusRead, st)

	st, err = ParseMsgStatus("3")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)

	_, err = ParseMsgStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	f, err := ParseMsgFormat("image")
	require.NoError(t, err)
	assert.Equal(t, FormatImage, f)

	_, err = ParseMsgFormat("0")
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	w, err := ParseWithdrawFlag("withdrawn")
	require.NoError(t, err)
	assert.Equal(t, WithdrawWithdrawn, w)

	w, err = ParseWithdrawFlag("0")
	require.NoError(t, err)
	assert.Equal(t, WithdrawNormal, w)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "video", FormatVideo.String())
	assert.Equal(t, "format(99)", MsgFormat(99).String())
	assert.Equal(t, "delivered", StatusDelivered.String())
	assert.Equal(t, "withdrawn", WithdrawWithdrawn.String())
}
