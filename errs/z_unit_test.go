package errs

import (
	"errors"
	"fmt"
	"testing"
)

var errSentinel = NewCode(Warn, "Sentinel", "sentinel")

func TestIsMatchesByCode(t *testing.T) {
	err := errSentinel.With("id=1")
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected With() copy to match sentinel")
	}
	if err.Extra != "id=1" || errSentinel.Extra != "" {
		t.Fatalf("With must not mutate the sentinel")
	}
	other := NewCode(Warn, "Other", "other")
	if errors.Is(err, other) {
		t.Fatalf("different codes must not match")
	}
	if errors.Is(NewWarn("plain"), NewWarn("plain")) {
		t.Fatalf("errors without code must not match by value")
	}
}

func TestWrapKeepsLevelAndCode(t *testing.T) {
	w := Wrap(errSentinel, "outer")
	if w.ErrLv != Warn || w.Code != "Sentinel" {
		t.Fatalf("unexpected wrap: %+v", w)
	}
	if !errors.Is(w, errSentinel) {
		t.Fatalf("wrapped error should match sentinel")
	}

	std := Wrap(fmt.Errorf("io"), "outer")
	if std.ErrLv != Fatal || std.Code != "" {
		t.Fatalf("foreign cause should be fatal without code: %+v", std)
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("ctx: %w", WrapWithExtra(errSentinel, "outer", "x"))
	if got := CodeOf(err); got != "Sentinel" {
		t.Fatalf("CodeOf got %q", got)
	}
	if got := CodeOf(errors.New("x")); got != "" {
		t.Fatalf("CodeOf got %q", got)
	}
}
