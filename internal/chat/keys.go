package chat

import (
	"net/url"
	"strconv"
)

// Keys lays out a room's records in the shared store:
//
//	<prefix>:room:<room>:binding:<name>  placeholder bindings
//	<prefix>:room:<room>:seq             message counter
//	<prefix>:room:<room>:msg:<seq>       logged message hash
//
// The room segment is query-escaped, so it never contains ':' or a glob
// character and no room's prefix can cover another room's keys.
type Keys struct {
	prefix string
}

// NewKeys creates a key layout under prefix.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) room(room string) string {
	seg := url.QueryEscape(room)
	if k.prefix == "" {
		return "room:" + seg + ":"
	}
	return k.prefix + ":room:" + seg + ":"
}

// Bindings is the namespace of the room's placeholder bindings.
func (k Keys) Bindings(room string) string { return k.room(room) + "binding:" }

// Counter is the room's message counter key.
func (k Keys) Counter(room string) string { return k.room(room) + "seq" }

// MessagePrefix prefixes every logged message of the room.
func (k Keys) MessagePrefix(room string) string { return k.room(room) + "msg:" }

// Message is the key of one logged message.
func (k Keys) Message(room string, seq int64) string {
	return k.MessagePrefix(room) + strconv.FormatInt(seq, 10)
}
