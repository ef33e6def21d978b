package logger

import "testing"

func TestRedact(t *testing.T) {
	out := redact([]interface{}{"client_id", 7, "api_key", "abc", "Authorization", "Bearer x", "dangling"})
	if len(out) != 7 {
		t.Fatalf("unexpected length %d", len(out))
	}
	if out[1] != 7 {
		t.Fatalf("plain value changed: %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("secret values not redacted: %v", out)
	}
	if out[6] != "dangling" {
		t.Fatalf("odd trailing key lost: %v", out)
	}
}
