package archive

import (
	"errors"
	"testing"
)

func TestGuardNestsAndRestores(t *testing.T) {
	if !Transparent() {
		t.Fatal("expected transparency on by default")
	}

	outer := Acquire()
	inner := Acquire()
	if Transparent() {
		t.Fatal("expected transparency off while guards held")
	}

	inner.Release()
	if Transparent() {
		t.Fatal("expected transparency still off with outer guard held")
	}

	outer.Release()
	outer.Release()
	if !Transparent() {
		t.Fatal("expected transparency restored")
	}
}

func TestWithOpaqueRestoresOnError(t *testing.T) {
	want := errors.New("boom")
	err := WithOpaque(func() error {
		if Transparent() {
			t.Fatal("expected transparency off inside WithOpaque")
		}
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if !Transparent() {
		t.Fatal("expected transparency restored after error")
	}
}

func TestWithOpaqueRestoresOnPanic(t *testing.T) {
	func() {
		defer func() { recover() }()
		WithOpaque(func() error { panic("boom") })
	}()
	if !Transparent() {
		t.Fatal("expected transparency restored after panic")
	}
}

func TestExtractRunsOpaque(t *testing.T) {
	src := writeZip(t, []entry{{name: "a", body: "a"}})
	if err := Extract(t.Context(), src, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if !Transparent() {
		t.Fatal("expected transparency restored after extract")
	}
}

func TestHookSeesOnlySwitches(t *testing.T) {
	var got []bool
	SetHook(func(transparent bool) { got = append(got, transparent) })
	t.Cleanup(func() { SetHook(nil) })

	WithOpaque(func() error {
		return WithOpaque(func() error { return nil })
	})

	if len(got) != 2 || got[0] || !got[1] {
		t.Fatalf("hook calls = %v, want [false true]", got)
	}
}
