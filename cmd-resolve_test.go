package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteLinesWritesOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.kraken")
	lines := []string{"C\tread1\t100", "U\tread2\t0"}

	if err := writeLines(path, lines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "C\tread1\t100\nU\tread2\t0\n"
	if string(got) != want {
		t.Fatalf("unexpected content: got %q, want %q", got, want)
	}
}
