package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be
// valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	if !strings.HasPrefix(subject, SubjectTraffic+".") {
		return nil
	}

	var p TrafficPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	switch {
	case p.MessageType == "":
		return fmt.Errorf("schema validation failed for %s: message_type is required", subject)
	case p.Origin == "":
		return fmt.Errorf("schema validation failed for %s: origin is required", subject)
	case subject != TrafficSubject(p.MessageType):
		return fmt.Errorf("schema validation failed for %s: message_type %q does not match subject", subject, p.MessageType)
	}
	return nil
}
