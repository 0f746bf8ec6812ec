// Package prefixed_uuid generates identifiers of the form "prefix-uuid",
// used for the per-request user identity sent to the agent.
package prefixed_uuid

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID is a random UUID tagged with a short kind prefix.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New returns a fresh random UUID with the given prefix.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// Parse reads "prefix-uuid". The prefix must be non-empty and must not
// itself contain a dash.
func Parse(s string) (PrefixedUUID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID %q", s)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID %q: %w", s, err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: id}, nil
}

func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero reports whether p is the zero value.
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

// MarshalJSON encodes p as a JSON string.
func (p PrefixedUUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes p from a JSON string.
func (p *PrefixedUUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
