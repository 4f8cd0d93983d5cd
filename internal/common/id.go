package common

import (
	"github.com/google/uuid"
)

// NewID generates a fresh 128-bit UUID as a string, used for Job, Step,
// Event, Artifact and Model primary keys.
func NewID() string {
	return uuid.New().String()
}
