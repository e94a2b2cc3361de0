// Package household parses the household field of a registration.
//
// The stored value is either free text or a JSON encoded list of
// {type, value} entries naming who else a person picks up for.
package household

import (
	"encoding/json"
	"strings"
)

// Entry types
const (
	TypeRegistration = "registration"
	TypeOther        = "other"
)

// Entry records that a registration picks up for another registration or an
// unlisted person
type Entry struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Household is either raw text or a list of entries. Exactly one form is set.
type Household struct {
	raw     string
	entries []Entry
	isList  bool
}

// RawText wraps a free-text household value
func RawText(s string) Household {
	return Household{raw: s}
}

// Entries wraps a list of entries, dropping the ones with an empty value
func Entries(entries []Entry) Household {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		value := strings.TrimSpace(e.Value)
		if value == "" {
			continue
		}
		typ := e.Type
		if typ != TypeRegistration {
			typ = TypeOther
		}
		out = append(out, Entry{Type: typ, Value: value})
	}
	return Household{entries: out, isList: true}
}

// IsEntries reports whether h holds a list of entries
func (h Household) IsEntries() bool { return h.isList }

// Raw returns the raw text; empty for entry lists
func (h Household) Raw() string { return h.raw }

// List returns a copy of the entries; nil for raw text
func (h Household) List() []Entry {
	if !h.isList {
		return nil
	}
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// RegistrationIDs returns the values of entries typed as registrations
func (h Household) RegistrationIDs() []string {
	var ids []string
	for _, e := range h.entries {
		if e.Type == TypeRegistration {
			ids = append(ids, e.Value)
		}
	}
	return ids
}

// Parse never fails: anything that is not a JSON list of entries is raw text.
func Parse(s string) Household {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") {
		return RawText(s)
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return RawText(s)
	}
	return Entries(entries)
}

// Serialize is the inverse of Parse
func Serialize(h Household) string {
	if !h.isList {
		return h.raw
	}
	if len(h.entries) == 0 {
		return "[]"
	}
	data, err := json.Marshal(h.entries)
	if err != nil {
		// Entry only holds strings
		return "[]"
	}
	return string(data)
}

// Display renders a household for exports and listings
func Display(h Household) string {
	if !h.isList {
		return h.raw
	}
	parts := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		if e.Type == TypeRegistration {
			parts = append(parts, "#"+e.Value)
			continue
		}
		parts = append(parts, e.Value)
	}
	return strings.Join(parts, "; ")
}
