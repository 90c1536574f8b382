package utils

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRunLock(t *testing.T) {
	dir := t.TempDir()
	a, err := NewRunLock(dir, "kyoto")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRunLock(dir, "kyoto")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.TryLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := b.TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	other, _ := NewRunLock(dir, "tokyo")
	if err := other.TryLock(); err != nil {
		t.Fatalf("locks must be per merchant: %v", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock(); err != nil {
		t.Fatalf("lock should be free after unlock: %v", err)
	}
	b.Unlock()
	other.Unlock()
}

func TestHeldLocks(t *testing.T) {
	dir := t.TempDir()
	busy, err := NewRunLock(dir, "tokyo")
	if err != nil {
		t.Fatal(err)
	}
	if err := busy.TryLock(); err != nil {
		t.Fatal(err)
	}
	defer busy.Unlock()

	held, err := HeldLocks(dir, []string{"kyoto", "tokyo", "osaka"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(held, []string{"tokyo"}) {
		t.Fatalf("held = %v, want [tokyo]", held)
	}

	// Checking must not leave the free locks taken.
	free, _ := NewRunLock(dir, "kyoto")
	if err := free.TryLock(); err != nil {
		t.Fatalf("kyoto should still be free: %v", err)
	}
	free.Unlock()
}

func TestRunLockSanitizesName(t *testing.T) {
	l, err := NewRunLock(t.TempDir(), "../evil shop")
	if err != nil {
		t.Fatal(err)
	}
	if base := filepath.Base(l.Path()); base != ".._evil_shop.lock" {
		t.Fatalf("unexpected lock file %q", base)
	}
	if _, err := NewRunLock(t.TempDir(), ""); err == nil {
		t.Fatal("empty merchant must fail")
	}
}

func TestGetAbsDBPath(t *testing.T) {
	def, err := GetAbsDBPath("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(def, filepath.Join(".config", "kashisync", "kashisync.sqlite")) {
		t.Fatalf("unexpected default path %q", def)
	}
	rel, err := GetAbsDBPath("data/k.sqlite")
	if err != nil || !filepath.IsAbs(rel) {
		t.Fatalf("expected absolute path, got %q, %v", rel, err)
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := SetLogLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if err := SetLogLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	SetLogLevel("info")
}
