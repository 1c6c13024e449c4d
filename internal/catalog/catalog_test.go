package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `mat_types:
  - code: MBW2
    name: Classic 85x150
    size: 85x150
  - code: MBW1
    name: Classic 85x75
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mat_types.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.Has("MBW2") || c.Has("MBW9") {
		t.Fatalf("unexpected membership")
	}
	mt, ok := c.Get("MBW2")
	if !ok || mt.Size != "85x150" {
		t.Fatalf("unexpected entry %+v", mt)
	}
	types := c.Types()
	if len(types) != 2 || types[0].Code != "MBW1" {
		t.Fatalf("expected sorted types, got %+v", types)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":     "mat_types: []\n",
		"no code":   "mat_types:\n  - name: x\n",
		"duplicate": "mat_types:\n  - code: A\n  - code: A\n",
		"unknown":   "mat_types:\n  - code: A\n    colour: red\n",
		"garbage":   "mat_types: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "parse catalog") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestNilCatalogAcceptsEverything(t *testing.T) {
	var c *Catalog
	if !c.Has("anything") {
		t.Fatalf("nil catalog must accept every code")
	}
	if _, ok := c.Get("anything"); ok {
		t.Fatalf("nil catalog has no entries")
	}
	if c.Types() != nil {
		t.Fatalf("nil catalog lists nothing")
	}
}
