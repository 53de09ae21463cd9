package perf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRunWithoutProfiling(t *testing.T) {
	called := false
	if err := Run(func() error { called = true; return nil }, "", t.TempDir()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !called {
		t.Fatalf("exe not called")
	}
}

func TestRunWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	for _, mode := range []string{"heap", "allocs", "cpu"} {
		if err := Run(func() error { return nil }, mode, dir); err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if _, err := os.Stat(filepath.Join(dir, mode+".pprof")); err != nil {
			t.Fatalf("%s profile missing: %v", mode, err)
		}
	}
}

func TestRunPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	if err := Run(func() error { return boom }, "heap", t.TempDir()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if err := Run(func() error { return nil }, "trace", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
