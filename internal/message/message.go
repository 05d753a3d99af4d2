// Package message defines the control protocol spoken on the clipfile socket.
//
// All messages are newline-delimited JSON, one message per line:
//
//	<json>\n
//
// A client sends one request per connection and reads one reply:
//
//	STATUS   -> STATUS_RESPONSE (the running offer)
//	RELEASE  -> OK (the offering process gives up the clipboard)
//	PING     -> PONG
//
// Anything else is answered with ERROR.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypeRelease        Type = "RELEASE"
	TypePing           Type = "PING"
	TypePong           Type = "PONG"
	TypeOK             Type = "OK"
	TypeError          Type = "ERROR"
)

// OfferStatus describes the offer held by a running copy or cut.
type OfferStatus struct {
	Intent  string    `json:"intent"`
	Paths   []string  `json:"paths"`
	Backend string    `json:"backend"`
	State   string    `json:"state"`
	PID     int       `json:"pid"`
	Since   time.Time `json:"since"`
}

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// STATUS_RESPONSE
	Offer *OfferStatus `json:"offer,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Errorf builds an ERROR reply.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}
