// internal/game/utils.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EncodeEvent marshals an Event into JSON bytes.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func EncodeEvent(ev Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.Warnf("failed to marshal event type %s: %v", ev.Type, err)
		return []byte("{}")
	}
	return data
}

// uuidPtr returns a pointer to a copy of id.
func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// strPtr returns a pointer to a copy of s.
func strPtr(s string) *string {
	return &s
}
