package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRotatingWriterRollsOverBySizeAndDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC)
	w := &RotatingWriter{BasePath: filepath.Join(dir, "socialcredit.log"), MaxBytes: 10, now: func() time.Time { return day }}
	t.Cleanup(func() { _ = w.Close() })

	if _, err := w.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	day = day.Add(24 * time.Hour)
	if _, err := w.Write([]byte("next")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for name, want := range map[string]string{
		"socialcredit-2025-10-26.log":   "12345678",
		"socialcredit-2025-10-26-2.log": "abcdef",
		"socialcredit-2025-10-27.log":   "next",
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s: expected %q, got %q", name, want, got)
		}
	}

	dest, err := os.Readlink(filepath.Join(dir, "socialcredit.log"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if dest != "socialcredit-2025-10-27.log" {
		t.Fatalf("expected base to follow active file, got %s", dest)
	}
}

func TestDiscardWriter(t *testing.T) {
	w, err := NewRotatingWriter("-", 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if n, err := w.Write([]byte("dropped")); err != nil || n != 7 {
		t.Fatalf("unexpected write result n=%d err=%v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
