package config

import (
	"testing"
	"time"
)

func TestIntAndDuration(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_INT", "42")
	t.Setenv("SLOTBOOK_TEST_DUR", "90s")

	n, err := Int("SLOTBOOK_TEST_INT", 1)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (err=%v)", n, err)
	}
	if n, _ := Int("SLOTBOOK_TEST_MISSING", 7); n != 7 {
		t.Fatalf("expected fallback 7, got %d", n)
	}
	d, err := Duration("SLOTBOOK_TEST_DUR", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %s (err=%v)", d, err)
	}

	t.Setenv("SLOTBOOK_TEST_INT", "nope")
	if _, err := Int("SLOTBOOK_TEST_INT", 1); err == nil {
		t.Fatal("expected error for non-integer value")
	}
}

func TestBoolAndCSV(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_BOOL", "yes")
	if !Bool("SLOTBOOK_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("SLOTBOOK_TEST_BOOL", "garbage")
	if Bool("SLOTBOOK_TEST_BOOL", false) {
		t.Fatal("expected fallback false for unparseable value")
	}

	t.Setenv("SLOTBOOK_TEST_CSV", " a, ,b ,c")
	got := CSV("SLOTBOOK_TEST_CSV")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected csv: %#v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_PORT", "70000")
	if _, err := Port("SLOTBOOK_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if p, err := Port("SLOTBOOK_TEST_PORT_UNSET", "8083"); err != nil || p != "8083" {
		t.Fatalf("expected fallback port, got %q (err=%v)", p, err)
	}
}
