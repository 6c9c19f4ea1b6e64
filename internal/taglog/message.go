package taglog

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MessageKind distinguishes text from structured messages.
type MessageKind uint8

const (
	KindText MessageKind = iota
	KindStructured
)

func (k MessageKind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "text"
}

// Message is either plain text or an arbitrary JSON value. The zero value is
// empty text.
type Message struct {
	kind MessageKind
	text string
	raw  json.RawMessage
}

// Text returns a text message.
func Text(s string) Message { return Message{kind: KindText, text: s} }

// Structured encodes v as a structured message. Values that encode to a JSON
// string become text messages.
func Structured(v any) (Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	var m Message
	err = m.UnmarshalJSON(raw)
	return m, err
}

// RawJSON wraps an already encoded JSON value.
func RawJSON(raw []byte) (Message, error) {
	if !json.Valid(raw) {
		return Message{}, errors.New("taglog: message is not valid JSON")
	}
	var m Message
	if err := m.UnmarshalJSON(raw); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) Kind() MessageKind { return m.kind }

// Text returns the text and true for text messages.
func (m Message) Text() (string, bool) { return m.text, m.kind == KindText }

// JSON returns the encoded value of a structured message, or nil.
func (m Message) JSON() json.RawMessage {
	if m.kind != KindStructured {
		return nil
	}
	return m.raw
}

// Decode unmarshals a structured message into v.
func (m Message) Decode(v any) error {
	if m.kind != KindStructured {
		return errors.New("taglog: message is text")
	}
	return json.Unmarshal(m.raw, v)
}

// String returns the text, or the compact JSON of a structured message.
func (m Message) String() string {
	if m.kind == KindText {
		return m.text
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, m.raw); err != nil {
		return string(m.raw)
	}
	return buf.String()
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.kind == KindStructured {
		return m.raw, nil
	}
	return json.Marshal(m.text)
}

// UnmarshalJSON decodes a JSON string as text and anything else as structured.
func (m *Message) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = Text(s)
		return nil
	}
	if !json.Valid(b) {
		return errors.New("taglog: invalid message JSON")
	}
	*m = Message{kind: KindStructured, raw: append(json.RawMessage(nil), b...)}
	return nil
}
