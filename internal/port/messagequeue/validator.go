package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectSessionStatus:
		var p SessionStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.SessionID <= 0 || p.Status == "" {
			return fmt.Errorf("schema validation failed for %s: session_id and status are required", subject)
		}
	case SubjectSessionLog:
		var p SessionLogPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.SessionID <= 0 {
			return fmt.Errorf("schema validation failed for %s: session_id is required", subject)
		}
	}
	return nil
}
