// Package hub fans control-plane events out to every connected operator.
// A single goroutine owns the client set; producers only ever touch
// channels.
package hub

import "encoding/json"

// Message is one pre-encoded JSON text frame.
type Message struct {
	Data []byte
}

// NewMessage wraps already-encoded JSON.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// EncodeJSON marshals v into a message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(data), nil
}
