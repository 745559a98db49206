package loggingutil

import (
	"bytes"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestEnsureLoggerReturnsNoopForNil(t *testing.T) {
	t.Parallel()

	if EnsureLogger(nil) == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestWithSubsystemTagsEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := pslog.NewStructured(&buf)
	WithSubsystem(base, ".chronicle.client.").Info("hello")
	if !strings.Contains(buf.String(), "chronicle.client") {
		t.Fatalf("expected subsystem in output, got %q", buf.String())
	}
}

func TestApplyLevelIgnoresUnknown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := pslog.NewStructured(&buf)
	logger := ApplyLevel(base, "not-a-level")
	logger.Info("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected info entry with unchanged level, got %q", buf.String())
	}
}

func TestApplyLevelRaisesToDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := pslog.NewStructured(&buf)
	ApplyLevel(base, "debug").Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug entry, got %q", buf.String())
	}
}
