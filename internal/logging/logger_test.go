package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConfigureJSON(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	if err := Configure(Options{Level: "info", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	Info("reader started", Component("reader"), ChainID(31337))

	out := buf.String()
	if !strings.Contains(out, `"msg":"reader started"`) {
		t.Errorf("expected JSON message, got: %s", out)
	}
	if !strings.Contains(out, `"chain_id":31337`) {
		t.Errorf("expected chain_id attr, got: %s", out)
	}
}

func TestConfigureLevelFilters(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	if err := Configure(Options{Level: "warn", Output: &buf}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be logged: %s", out)
	}
}

func TestConfigureRejectsUnknown(t *testing.T) {
	if err := Configure(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Configure(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestErrHelper(t *testing.T) {
	if got := Err(nil); got.Value.String() != "" {
		t.Errorf("Err(nil) = %q, want empty", got.Value.String())
	}
	if got := Err(errors.New("boom")); got.Value.String() != "boom" {
		t.Errorf("Err = %q, want boom", got.Value.String())
	}
}

func TestRedactSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("unlock", "wallet_password", "hunter22", "account", "0x1234567890123456789012345678901234567890")

	out := buf.String()
	if strings.Contains(out, "hunter22") {
		t.Errorf("password leaked: %s", out)
	}
	if !strings.Contains(out, "0x1234567890123456789012345678901234567890") {
		t.Errorf("address should not be redacted: %s", out)
	}
}

func TestRedactPrivateKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil)))

	key := "0x" + strings.Repeat("ab", 32)
	logger.Info("imported "+key, "input", key)

	out := buf.String()
	if strings.Contains(out, key) {
		t.Errorf("private key leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", out)
	}
}

func TestRedactKeepsTxHash(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil)))

	hash := "0x" + strings.Repeat("cd", 32)
	logger.Info("submitted", TxHash(hash))

	if !strings.Contains(buf.String(), hash) {
		t.Errorf("tx hash should survive redaction: %s", buf.String())
	}
}
