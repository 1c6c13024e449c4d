// Package catalog loads the mat types operators may order and scan.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type MatType struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Size string `yaml:"size,omitempty"`
}

type Catalog struct {
	types map[string]MatType
}

type document struct {
	MatTypes []MatType `yaml:"mat_types"`
}

// Load reads a YAML catalog of the form:
//
//	mat_types:
//	  - code: MBW2
//	    name: Classic 85x150
//	    size: 85x150
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.MatTypes) == 0 {
		return nil, fmt.Errorf("parse catalog: mat_types is empty")
	}
	c := &Catalog{types: make(map[string]MatType, len(doc.MatTypes))}
	for i, mt := range doc.MatTypes {
		mt.Code = strings.TrimSpace(mt.Code)
		if mt.Code == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no code", i)
		}
		if _, dup := c.types[mt.Code]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate code %q", mt.Code)
		}
		c.types[mt.Code] = mt
	}
	return c, nil
}

// Has reports whether code is a known mat type. A nil catalog accepts
// everything.
func (c *Catalog) Has(code string) bool {
	if c == nil {
		return true
	}
	_, ok := c.types[code]
	return ok
}

func (c *Catalog) Get(code string) (MatType, bool) {
	if c == nil {
		return MatType{}, false
	}
	mt, ok := c.types[code]
	return mt, ok
}

// Types returns the catalog entries ordered by code.
func (c *Catalog) Types() []MatType {
	if c == nil {
		return nil
	}
	out := make([]MatType, 0, len(c.types))
	for _, mt := range c.types {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
