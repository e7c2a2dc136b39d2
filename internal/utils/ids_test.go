package utils

import (
	"strings"
	"testing"
)

func TestMakeID(t *testing.T) {
	id := MakeID("job")
	if !strings.HasPrefix(id, "job_") {
		t.Errorf("id = %q", id)
	}
	if len(id) != len("job_")+12 {
		t.Errorf("id length = %d", len(id))
	}
	if MakeID("job") == id {
		t.Error("ids should not repeat")
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Graph Theory 101", "graph_theory_101"},
		{"  Sorting & Searching!  ", "sorting_searching"},
		{"---", ""},
		{"already_slugged", "already_slugged"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("max 0 should be a no-op, got %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("VERIPACK_TEST_ENV", "set")
	if got := GetEnv("VERIPACK_TEST_ENV", "default", nil); got != "set" {
		t.Errorf("got %q", got)
	}
	if got := GetEnv("VERIPACK_TEST_MISSING", "default", nil); got != "default" {
		t.Errorf("got %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("VERIPACK_TEST_INT", "42")
	if got := GetEnvAsInt("VERIPACK_TEST_INT", 7, nil); got != 42 {
		t.Errorf("got %d", got)
	}
	t.Setenv("VERIPACK_TEST_INT", "not-a-number")
	if got := GetEnvAsInt("VERIPACK_TEST_INT", 7, nil); got != 7 {
		t.Errorf("got %d, want fallback", got)
	}
}
