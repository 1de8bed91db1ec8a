package wizard

import (
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

// Codec serializes sessions for out-of-process session stores. Collected
// values are decoded back to their schema types.
type Codec struct {
	schema *schema.Schema
}

func NewCodec(s *schema.Schema) Codec { return Codec{schema: s} }

type storedSession struct {
	Session
	Collected map[string]json.RawMessage `json:"collected,omitempty"`
}

// Encode renders s as JSON.
func (c Codec) Encode(s Session) ([]byte, error) {
	stored := storedSession{Session: s, Collected: make(map[string]json.RawMessage, len(s.Collected))}
	for k, v := range s.Collected {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		stored.Collected[k] = raw
	}
	return json.Marshal(stored)
}

// Decode restores a session encoded by Encode.
func (c Codec) Decode(raw []byte) (Session, error) {
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Session{}, fmt.Errorf("decoding session: %w", err)
	}
	s := stored.Session
	s.Collected = make(directory.Attributes, len(stored.Collected))
	for k, v := range stored.Collected {
		f, ok := c.schema.Field(k)
		if !ok {
			return Session{}, fmt.Errorf("decoding session: unknown field %q", k)
		}
		val, err := f.Decode(v)
		if err != nil {
			return Session{}, fmt.Errorf("decoding session field %s: %w", k, err)
		}
		s.Collected[k] = val
	}
	return s, nil
}
