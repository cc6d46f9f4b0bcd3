package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, fn func()) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	fn()
	if buf.Len() == 0 {
		return nil
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v: %s", err, buf.String())
	}
	return entry
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	if got := RedactPhone("+49 151 2345678"); got != "***78" {
		t.Errorf("RedactPhone = %q", got)
	}
	if got := RedactPhone("1"); got != "***" {
		t.Errorf("RedactPhone short = %q", got)
	}
}

func TestRecipientFieldsNeverLogInTheClear(t *testing.T) {
	entry := capture(t, func() {
		Info("send outcome", "recipient", "ada.lovelace@example.com", "campaign_id", "c1")
	})
	got, _ := entry["recipient"].(string)
	if strings.Contains(got, "ada.lovelace@") {
		t.Fatalf("recipient logged in the clear: %q", got)
	}
	if got != "ad***@example.com" {
		t.Errorf("recipient = %q", got)
	}
}

func TestEmbeddedEmailRedactedRegardlessOfKey(t *testing.T) {
	entry := capture(t, func() {
		Warn("provider rejected", "error", "550 mailbox ada.lovelace@example.com unavailable")
	})
	got, _ := entry["error"].(string)
	if strings.Contains(got, "ada.lovelace@") {
		t.Fatalf("embedded email logged in the clear: %q", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	SetLevel(WARN)
	defer SetLevel(INFO)
	entry := capture(t, func() {
		Info("below threshold")
	})
	if entry != nil {
		t.Errorf("INFO emitted at WARN level: %v", entry)
	}
}

func TestComponentTag(t *testing.T) {
	entry := capture(t, func() {
		With("dispatcher").Info("started")
	})
	if entry["component"] != "dispatcher" {
		t.Errorf("component = %v", entry["component"])
	}
}
