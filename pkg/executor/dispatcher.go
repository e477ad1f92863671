package executor

import "sync"

// CollectingDispatcher gathers the bot responses an action wants to send.
// A new dispatcher is created for every run.
type CollectingDispatcher struct {
	mu       sync.Mutex
	messages []Message
}

// NewCollectingDispatcher returns an empty dispatcher.
func NewCollectingDispatcher() *CollectingDispatcher {
	return &CollectingDispatcher{}
}

// Utter queues a plain text response.
func (d *CollectingDispatcher) Utter(text string) {
	d.UtterMessage(Message{"text": text})
}

// UtterResponse queues a response defined in the domain by name.
func (d *CollectingDispatcher) UtterResponse(name string, vars map[string]any) {
	msg := Message{"response": name}
	for k, v := range vars {
		msg[k] = v
	}
	d.UtterMessage(msg)
}

// UtterMessage queues an arbitrary response object.
func (d *CollectingDispatcher) UtterMessage(msg Message) {
	cp := make(Message, len(msg))
	for k, v := range msg {
		cp[k] = v
	}

	d.mu.Lock()
	d.messages = append(d.messages, cp)
	d.mu.Unlock()
}

// Messages returns the queued responses in order.
func (d *CollectingDispatcher) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Message, len(d.messages))
	copy(out, d.messages)
	return out
}
