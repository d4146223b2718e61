package template

import (
	"encoding/json"
	"fmt"
)

// End is the StateIndex sentinel of a finished conversation. It never
// addresses a node.
const End = -1

// Node is one step of a conversation. An empty Message or a nil Options
// slice means the field is absent.
type Node struct {
	ID      string   `json:"id,omitempty"`
	Message string   `json:"message,omitempty"`
	Options []string `json:"options,omitempty"`
	Trigger Trigger  `json:"trigger,omitempty"`
	// Store names the binding the raw incoming message is written to.
	Store string `json:"store,omitempty"`
	// User marks a node that consumes the participant's reply.
	User bool   `json:"user,omitempty"`
	End  bool   `json:"end,omitempty"`
	Type string `json:"type,omitempty"`
}

// HasOptions reports whether the node offers selectable options.
func (n *Node) HasOptions() bool { return len(n.Options) > 0 }

// Trigger is either a single node id or one node id per option.
type Trigger struct {
	IDs []string
	// PerOption is true when the document gave a list.
	PerOption bool
}

// SingleTrigger builds a trigger to one node.
func SingleTrigger(id string) Trigger { return Trigger{IDs: []string{id}} }

// OptionTriggers builds a per-option trigger list.
func OptionTriggers(ids ...string) Trigger { return Trigger{IDs: ids, PerOption: true} }

// IsSet reports whether the node has a trigger at all.
func (t Trigger) IsSet() bool { return len(t.IDs) > 0 }

// Single returns the target of a single-id trigger.
func (t Trigger) Single() (string, bool) {
	if t.PerOption || len(t.IDs) != 1 {
		return "", false
	}
	return t.IDs[0], true
}

// UnmarshalJSON accepts a string or an array of strings.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = SingleTrigger(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("trigger must be a node id or a list of node ids: %w", err)
	}
	*t = OptionTriggers(list...)
	return nil
}

// MarshalJSON writes the form the trigger was declared in.
func (t Trigger) MarshalJSON() ([]byte, error) {
	if id, ok := t.Single(); ok {
		return json.Marshal(id)
	}
	if !t.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(t.IDs)
}
