package util

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRingKeepsNewest(t *testing.T) {
	r := NewRing[int](3)
	if got := r.Last(-1); len(got) != 0 {
		t.Fatalf("empty ring = %v", got)
	}
	r.Add(1)
	r.Add(2)
	if got := r.Last(5); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("partial = %v", got)
	}
	for i := 3; i <= 7; i++ {
		r.Add(i)
	}
	if got := r.Last(-1); !reflect.DeepEqual(got, []int{5, 6, 7}) {
		t.Fatalf("all = %v", got)
	}
	if got := r.Last(2); !reflect.DeepEqual(got, []int{6, 7}) {
		t.Fatalf("last 2 = %v", got)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("base", "rel/x"); got != filepath.Join("base", "rel", "x") {
		t.Fatalf("relative = %q", got)
	}
	abs := filepath.Join(t.TempDir(), "x")
	if got := ResolvePath("base", abs); got != abs {
		t.Fatalf("absolute = %q", got)
	}
}

func TestWriteJSONFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.json")
	if err := WriteJSONFile(path, map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{\n  \"n\": 1\n}" {
		t.Fatalf("content = %q", b)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		8*1024*1024 + 1: "8.0 MiB",
		10 << 20:        "10.0 MiB",
		3 << 30:         "3.0 GiB",
	}
	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
