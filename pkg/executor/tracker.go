package executor

// Tracker is a read-only view of the conversation state in an ActionCall.
type Tracker struct {
	raw map[string]any
}

// NewTracker wraps the tracker object from an action call.
func NewTracker(raw map[string]any) Tracker {
	if raw == nil {
		raw = map[string]any{}
	}
	return Tracker{raw: raw}
}

// SenderID returns the conversation id.
func (t Tracker) SenderID() string {
	s, _ := t.raw["sender_id"].(string)
	return s
}

// Slots returns the slot values keyed by slot name.
func (t Tracker) Slots() map[string]any {
	slots, _ := t.raw["slots"].(map[string]any)
	if slots == nil {
		return map[string]any{}
	}
	return slots
}

// GetSlot returns a slot value and whether it is set to a non-null value.
func (t Tracker) GetSlot(name string) (any, bool) {
	v, ok := t.Slots()[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// LatestMessage returns the most recent user message.
func (t Tracker) LatestMessage() map[string]any {
	msg, _ := t.raw["latest_message"].(map[string]any)
	if msg == nil {
		return map[string]any{}
	}
	return msg
}

// LatestIntent returns the intent name of the latest user message.
func (t Tracker) LatestIntent() string {
	intent, _ := t.LatestMessage()["intent"].(map[string]any)
	name, _ := intent["name"].(string)
	return name
}

// ActiveLoop returns the name of the active loop, or "" when none is active.
func (t Tracker) ActiveLoop() string {
	loop, _ := t.raw["active_loop"].(map[string]any)
	name, _ := loop["name"].(string)
	return name
}

// Raw returns the underlying tracker object.
func (t Tracker) Raw() map[string]any {
	return t.raw
}
