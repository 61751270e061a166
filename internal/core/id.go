package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a new random run identifier.
func GenerateID() string {
	return uuid.New().String()
}

// ShortID returns the first 8 characters of an ID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunFilename builds the dataset filename for a run started at t.
func RunFilename(t time.Time) string {
	return fmt.Sprintf("conversation_%s.json", t.Format("20060102_150405"))
}
