package imf

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUID is a 16-byte identifier in canonical network byte order.
type UUID [16]byte

// String renders u in the urn:uuid: textual form.
func (u UUID) String() string {
	return "urn:uuid:" + uuid.UUID(u).String()
}

// IsZero reports whether u is the all-zero UUID.
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// ParseUUID parses text of the form urn:uuid:XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX
// (case-insensitive) into a UUID. Any other form, including a bare UUID
// without the urn:uuid: prefix, is rejected: spec grammar requires the
// prefix explicitly.
func ParseUUID(text string) (UUID, error) {
	const prefix = "urn:uuid:"
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return UUID{}, fmt.Errorf("%w: UUID text missing urn:uuid: prefix: %q", ErrInvalidData, text)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return UUID{}, fmt.Errorf("%w: malformed UUID %q: %v", ErrInvalidData, text, err)
	}
	return UUID(parsed), nil
}

// ReadUUID reads the concatenated text content of el and parses it as a
// UUID (component 4.A read_uuid).
func ReadUUID(el Element) (UUID, error) {
	if el == nil {
		return UUID{}, fmt.Errorf("%w: missing element for UUID", ErrInvalidData)
	}
	return ParseUUID(el.Text())
}
