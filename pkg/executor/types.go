package executor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidBody is returned when a webhook body is not a JSON object.
var ErrInvalidBody = errors.New("invalid body request")

// ActionCall is the payload the dialogue engine posts to the webhook.
type ActionCall struct {
	NextAction string         `json:"next_action,omitempty"`
	SenderID   string         `json:"sender_id,omitempty"`
	Version    string         `json:"version,omitempty"`
	Tracker    map[string]any `json:"tracker,omitempty"`
	Domain     map[string]any `json:"domain,omitempty"`

	// Extra holds every other top-level field, untouched.
	Extra map[string]any `json:"-"`
}

// ParseActionCall decodes a webhook body. Anything other than a JSON object,
// or a known field of the wrong type, yields ErrInvalidBody.
func ParseActionCall(data []byte) (*ActionCall, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if raw == nil {
		return nil, ErrInvalidBody
	}

	call := &ActionCall{Extra: make(map[string]any)}
	for key, value := range raw {
		var ok bool
		switch key {
		case "next_action":
			call.NextAction, ok = optionalString(value)
		case "sender_id":
			call.SenderID, ok = optionalString(value)
		case "version":
			call.Version, ok = optionalString(value)
		case "tracker":
			call.Tracker, ok = optionalObject(value)
		case "domain":
			call.Domain, ok = optionalObject(value)
		default:
			call.Extra[key] = value
			ok = true
		}
		if !ok {
			return nil, fmt.Errorf("%w: field %q has the wrong type", ErrInvalidBody, key)
		}
	}

	return call, nil
}

func optionalString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func optionalObject(v any) (map[string]any, bool) {
	if v == nil {
		return nil, true
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// MarshalJSON writes the known fields and Extra back as one object.
func (c ActionCall) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.NextAction != "" {
		out["next_action"] = c.NextAction
	}
	if c.SenderID != "" {
		out["sender_id"] = c.SenderID
	}
	if c.Version != "" {
		out["version"] = c.Version
	}
	if c.Tracker != nil {
		out["tracker"] = c.Tracker
	}
	if c.Domain != nil {
		out["domain"] = c.Domain
	}
	return json.Marshal(out)
}

// Event is a tracker event returned by an action.
type Event map[string]any

// SlotSet returns an event that sets slot name to value.
func SlotSet(name string, value any) Event {
	return Event{"event": "slot", "name": name, "value": value, "timestamp": nil}
}

// FollowupAction returns an event that schedules another action.
func FollowupAction(name string) Event {
	return Event{"event": "followup", "name": name, "timestamp": nil}
}

// ActiveLoop returns an event that activates a loop, or deactivates when
// name is empty.
func ActiveLoop(name string) Event {
	var loop any
	if name != "" {
		loop = name
	}
	return Event{"event": "active_loop", "name": loop, "timestamp": nil}
}

// Message is one bot response collected during an action run.
type Message map[string]any

// Domain is the assistant domain sent along with each call.
type Domain map[string]any

// Result is the success payload returned to the dialogue engine.
type Result struct {
	Events    []Event   `json:"events"`
	Responses []Message `json:"responses,omitempty"`
}
