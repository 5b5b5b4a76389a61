// Package indexes declares the secondary indexes of the message collection
// and keeps a live collection in step with them.
package indexes

import (
	"fmt"
	"strings"

	"msgstore/models"
)

// Order is the direction of one key in an index.
type Order int

const (
	Ascending  Order = 1
	Descending Order = -1
	Hashed     Order = 0
	Special    Order = 2 // text, 2dsphere and other kinds this schema never declares
)

func (o Order) String() string {
	switch o {
	case Ascending:
		return "1"
	case Descending:
		return "-1"
	case Hashed:
		return "hashed"
	default:
		return "special"
	}
}

type Key struct {
	Field string `json:"field"`
	Order Order  `json:"order"`
}

// Declaration is one index specification. Background builds never block
// concurrent reads or writes on the collection.
type Declaration struct {
	Name       string `json:"name"`
	Keys       []Key  `json:"keys"`
	Unique     bool   `json:"unique,omitempty"`
	Background bool   `json:"background"`
}

// Fields returns the key fields in order.
func (d Declaration) Fields() []string {
	out := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		out[i] = k.Field
	}
	return out
}

// HasField reports whether field is part of the index.
func (d Declaration) HasField(field string) bool {
	for _, k := range d.Keys {
		if k.Field == field {
			return true
		}
	}
	return false
}

// KeySpec renders the keys as a shell-style document, e.g. {chatId: 1, msgCreateTime: -1}.
func (d Declaration) KeySpec() string {
	return KeySpecOf(d.Keys)
}

// KeySpecOf renders a key pattern the way KeySpec does.
func KeySpecOf(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Field + ": " + k.Order.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Index names, in provisioning order.
const (
	ChatIDHashed             = "idx_chatId_hashed"
	MsgID                    = "idx_msgId"
	ChatIDCreateTime         = "idx_chatId_msgCreateTime"
	FromUserChatCreateTime   = "idx_fromUserId_chatId_msgCreateTime"
	ToUserChatCreateTime     = "idx_toUserId_chatId_msgCreateTime"
	ChatIDContent            = "idx_chatId_msgContent"
	ChatIDStatusCreateTime   = "idx_chatId_msgStatus_msgCreateTime"
	ChatIDFormatCreateTime   = "idx_chatId_msgFormat_msgCreateTime"
	ChatIDWithdrawCreateTime = "idx_chatId_withdrawFlag_msgCreateTime"
	ChatIDCombined           = "idx_chatId_status_format_withdraw"
)

// Required returns the declarations every deployment must carry, in the
// fixed provisioning order.
//
// A sharded cluster only enforces unique indexes prefixed by the shard key, so
// idx_msgId is unique on standalone and replica-set deployments only. On a
// sharded cluster msgId uniqueness rests on the chatId_msgId document id.
func Required(sharded bool) []Declaration {
	asc := func(f string) Key { return Key{Field: f, Order: Ascending} }
	newestFirst := Key{Field: models.FieldMsgCreateTime, Order: Descending}

	decls := []Declaration{
		{Name: ChatIDHashed, Keys: []Key{{Field: models.FieldChatID, Order: Hashed}}},
		{Name: MsgID, Keys: []Key{asc(models.FieldMsgID)}, Unique: !sharded},
		{Name: ChatIDCreateTime, Keys: []Key{asc(models.FieldChatID), newestFirst}},
		{Name: FromUserChatCreateTime, Keys: []Key{asc(models.FieldFromUserID), asc(models.FieldChatID), newestFirst}},
		{Name: ToUserChatCreateTime, Keys: []Key{asc(models.FieldToUserID), asc(models.FieldChatID), newestFirst}},
		{Name: ChatIDContent, Keys: []Key{asc(models.FieldChatID), asc(models.FieldMsgContent)}},
		{Name: ChatIDStatusCreateTime, Keys: []Key{asc(models.FieldChatID), asc(models.FieldMsgStatus), newestFirst}},
		{Name: ChatIDFormatCreateTime, Keys: []Key{asc(models.FieldChatID), asc(models.FieldMsgFormat), newestFirst}},
		{Name: ChatIDWithdrawCreateTime, Keys: []Key{asc(models.FieldChatID), asc(models.FieldWithdrawFlag), newestFirst}},
		{Name: ChatIDCombined, Keys: []Key{
			asc(models.FieldChatID),
			asc(models.FieldMsgStatus),
			asc(models.FieldMsgFormat),
			asc(models.FieldWithdrawFlag),
			newestFirst,
		}},
	}
	for i := range decls {
		decls[i].Background = true
	}
	return decls
}

// Lookup finds a required declaration by name.
func Lookup(name string) (Declaration, bool) {
	for _, d := range Required(false) {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}

// Validate checks that every index other than the msgId lookup and the hashed
// shard-key index includes chatId, so no index forces cross-shard fan-out.
func Validate(decls []Declaration) error {
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if d.Name == "" || len(d.Keys) == 0 {
			return fmt.Errorf("index declaration %q has no name or keys", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate index declaration %q", d.Name)
		}
		seen[d.Name] = true
		if d.Name == MsgID || d.Name == ChatIDHashed {
			continue
		}
		if !d.HasField(models.FieldChatID) {
			return fmt.Errorf("index %s %s does not include %s", d.Name, d.KeySpec(), models.FieldChatID)
		}
	}
	return nil
}

// Diff returns the names of required declarations absent from live, in
// required order. A live index with the same key pattern under another name
// satisfies a declaration.
func Diff(required, live []Declaration) []string {
	names := make(map[string]struct{}, len(live))
	patterns := make(map[string]struct{}, len(live))
	for _, d := range live {
		names[d.Name] = struct{}{}
		patterns[d.KeySpec()] = struct{}{}
	}
	var missing []string
	for _, d := range required {
		if _, ok := names[d.Name]; ok {
			continue
		}
		if _, ok := patterns[d.KeySpec()]; ok {
			continue
		}
		missing = append(missing, d.Name)
	}
	return missing
}
