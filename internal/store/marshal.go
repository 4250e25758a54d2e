package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/globalchange/internal/repo"
)

// timeLayout stores timestamps as sortable UTC text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalMessages converts validation messages to JSON TEXT.
// HTML escaping is disabled so stored messages read as written.
func marshalMessages(msgs []repo.Message) (string, error) {
	if len(msgs) == 0 {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msgs); err != nil {
		return "", fmt.Errorf("marshal validation: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalMessages(data string) ([]repo.Message, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var msgs []repo.Message
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal validation: %w", err)
	}
	return msgs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
