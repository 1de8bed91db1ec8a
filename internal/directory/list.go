package directory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ListResponse is one of the list shapes the directory returns:
// RawList, WrappedList or NestedList.
type ListResponse interface {
	entities() []Entity
}

// RawList is a bare JSON array of accounts.
type RawList []Entity

// WrappedList is {"users": [...]} or {"entities": [...]}.
type WrappedList struct {
	Entities []Entity
}

// NestedList is {"response": {"users": [...]}} or the same with "entities".
type NestedList struct {
	Entities []Entity
	Total    int
}

func (l RawList) entities() []Entity     { return l }
func (l WrappedList) entities() []Entity { return l.Entities }
func (l NestedList) entities() []Entity  { return l.Entities }

// Normalize flattens any list shape into an ordered slice. Nil yields nil.
func Normalize(l ListResponse) []Entity {
	if l == nil {
		return nil
	}
	src := l.entities()
	if len(src) == 0 {
		return nil
	}
	out := make([]Entity, len(src))
	for i := range src {
		out[i] = *src[i].Clone()
	}
	return out
}

type listBody struct {
	Users    []Entity `json:"users"`
	Entities []Entity `json:"entities"`
	Total    int      `json:"total"`
}

func (b listBody) list() []Entity {
	if b.Users != nil {
		return b.Users
	}
	return b.Entities
}

// DecodeList decodes a list payload into its variant.
func DecodeList(raw []byte) (ListResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("directory: empty list payload")
	}
	if raw[0] == '[' {
		var l RawList
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("decoding list: %w", err)
		}
		return l, nil
	}

	var top struct {
		Response *listBody `json:"response"`
		listBody
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	if top.Response != nil {
		return NestedList{Entities: top.Response.list(), Total: top.Response.Total}, nil
	}
	return WrappedList{Entities: top.list()}, nil
}
