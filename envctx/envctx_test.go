package envctx

import (
	"reflect"
	"sort"
	"testing"
)

func TestGetvarFallsBackToBaseline(t *testing.T) {
	m := NewManager(map[string]string{"PATH": "/usr/bin"})
	v, ok := m.Getvar("PATH")
	if !ok || v != "/usr/bin" {
		t.Fatalf("Getvar(PATH) = %q, %v; want /usr/bin, true", v, ok)
	}
	if _, ok := m.Getvar("MISSING"); ok {
		t.Fatalf("Getvar(MISSING) should report false")
	}
}

func TestSetvarShadowsBaseline(t *testing.T) {
	m := NewManager(map[string]string{"FOO": "baseline"})
	m.Setvar("FOO", "override")
	v, ok := m.Getvar("FOO")
	if !ok || v != "override" {
		t.Fatalf("Getvar(FOO) = %q, %v; want override, true", v, ok)
	}
}

func TestUnsetvarHidesBaseline(t *testing.T) {
	m := NewManager(map[string]string{"FOO": "bar"})
	m.Unsetvar("FOO")
	if _, ok := m.Getvar("FOO"); ok {
		t.Fatalf("expected FOO to be unset")
	}
}

func TestWithContextRestoresOnExit(t *testing.T) {
	m := NewManager(map[string]string{"FOO": "bar"})
	err := m.WithContext(func() error {
		m.Setvar("FOO", "temp")
		m.Setvar("NEWVAR", "x")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := m.Getvar("FOO"); v != "bar" {
		t.Fatalf("FOO = %q after context exit, want bar", v)
	}
	if _, ok := m.Getvar("NEWVAR"); ok {
		t.Fatalf("NEWVAR should not survive context exit")
	}
}

func TestWithContextRestoresOnPanic(t *testing.T) {
	m := NewManager(map[string]string{"FOO": "bar"})
	func() {
		defer func() { recover() }()
		m.WithContext(func() error {
			m.Setvar("FOO", "temp")
			panic("boom")
		})
	}()
	if v, _ := m.Getvar("FOO"); v != "bar" {
		t.Fatalf("FOO = %q after panic unwind, want bar", v)
	}
}

func TestModifyEnvAppliesNewChangedAndVanishedKeys(t *testing.T) {
	m := NewManager(map[string]string{"A": "1", "B": "2", "C": "3"})
	old := m.Apply()
	next := map[string]string{"A": "1", "B": "20", "D": "4"}

	m.ModifyEnv(old, next)

	got := m.Apply()
	want := map[string]string{"A": "1", "B": "20", "D": "4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Apply() = %v, want %v", got, want)
	}
}

func TestApplyEnvironIsSorted(t *testing.T) {
	m := NewManager(map[string]string{"B": "2", "A": "1"})
	out := m.ApplyEnviron()
	if !sort.StringsAreSorted(out) {
		t.Fatalf("ApplyEnviron() not sorted: %v", out)
	}
}

func TestMergeDedupPathPreservesBaselineOrder(t *testing.T) {
	got := MergeDedupPath([]string{"/a", "/b"}, []string{"/b", "/c"})
	want := []string{"/a", "/b", "/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeDedupPath() = %v, want %v", got, want)
	}
}

func TestMergeDedupPathSkipsEmptyEntries(t *testing.T) {
	got := MergeDedupPath([]string{"", "/a"}, []string{"", "/b"})
	want := []string{"/a", "/b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeDedupPath() = %v, want %v", got, want)
	}
}
