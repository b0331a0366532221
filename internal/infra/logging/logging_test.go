package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"license-activation/internal/config"
)

func deviceField(t *testing.T, dev bool) string {
	t.Helper()
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)
	devMode.Store(dev)

	ctx := WithTraceID(WithDeviceID(context.Background(), "device-1234567890"), "trace-1")
	With(ctx, base).Info().Msg("activation")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["trace_id"] != "trace-1" {
		t.Fatalf("trace_id = %v", line["trace_id"])
	}
	s, _ := line["device_id"].(string)
	return s
}

func TestWith_RedactsDeviceOutsideDev(t *testing.T) {
	if got := deviceField(t, false); got != "devi...90" {
		t.Fatalf("device_id = %q, want redacted", got)
	}
	if got := deviceField(t, true); got != "device-1234567890" {
		t.Fatalf("device_id = %q, want verbatim in dev", got)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		dev  bool
		want string
	}{
		{"short", false, "***"},
		{"abcdefghij", false, "abcd...ij"},
		{"abcdefghij", true, "abcdefghij"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in, tt.dev); got != tt.want {
			t.Errorf("Redact(%q, %v) = %q, want %q", tt.in, tt.dev, got, tt.want)
		}
	}
}

func TestTraceDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "trace", Format: "json"}, false, &buf)

	TraceDuration(l, "ActivationUC.Activate")()

	if n := bytes.Count(buf.Bytes(), []byte(`"method":"ActivationUC.Activate"`)); n != 2 {
		t.Fatalf("expected start and finish lines, got %d:\n%s", n, buf.String())
	}
}
