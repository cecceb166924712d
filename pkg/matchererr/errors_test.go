package matchererr

import (
	"errors"
	"testing"
)

func TestIsKind(t *testing.T) {
	err := Validation(CodeInvalidSignature, "bad signature", nil)
	if !IsKind(err, KindValidation) {
		t.Error("IsKind should match the error's own kind")
	}
	if IsKind(err, KindConflict) {
		t.Error("IsKind should not match a different kind")
	}
	if IsKind(errors.New("plain error"), KindValidation) {
		t.Error("IsKind should not match a non-MatcherError")
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	root := errors.New("pebble: disk full")
	err := FatalStartup(root, "snapshot load failed")

	if !errors.Is(err, root) {
		t.Error("errors.Is should see through the wrapped cause")
	}
}

func TestErrorMessageIncludesCodeAndParams(t *testing.T) {
	err := Validation(CodeDeviantOrderPrice, "price too far from market", map[string]any{"price": 123})
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	// Sanity: code and kind both land in the string form callers log.
	want := "ValidationError[9441295]: price too far from market"
	if len(msg) < len(want) || msg[:len(want)] != want {
		t.Errorf("Error() = %q, want prefix %q", msg, want)
	}
}

func TestTransientIsDistinctFromFatalStartup(t *testing.T) {
	cause := errors.New("connection reset")
	if IsKind(Transient(cause, "retrying"), KindFatalStartup) {
		t.Error("Transient should not report as FatalStartup")
	}
	if IsKind(FatalStartup(cause, "aborting"), KindTransientInfrastructure) {
		t.Error("FatalStartup should not report as Transient")
	}
}
