package data

import (
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

var minisiteIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// NewMinisiteID generates a unique 32-character hex id for a minisite.
func NewMinisiteID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// IsValidMinisiteID reports whether id has the expected 32-hex format.
func IsValidMinisiteID(id string) bool {
	return minisiteIDPattern.MatchString(id)
}

// TempSlug derives the temporary slug assigned to a draft minisite before a
// public slug pair is reserved.
func TempSlug(id string) string {
	if len(id) > 12 {
		id = id[:12]
	}
	return "draft-" + id
}
