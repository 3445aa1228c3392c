package config

import (
	"fmt"
)

// Category names an asset category in the Path Table.
type Category string

const (
	CategoryStyles    Category = "styles"
	CategoryScripts   Category = "scripts"
	CategoryTemplates Category = "templates"
	CategoryImages    Category = "images"
	CategoryFonts     Category = "fonts"
)

// Categories lists every category in a fixed order.
var Categories = []Category{
	CategoryStyles,
	CategoryScripts,
	CategoryTemplates,
	CategoryImages,
	CategoryFonts,
}

// Entry is one row of the Path Table.
type Entry struct {
	Category Category
	Src      string
	Entry    string
	Dest     string
}

// PathTable maps each asset category to its source glob and destination.
// It is a value type; copies share nothing mutable.
type PathTable struct {
	root    string
	entries [5]Entry
}

// NewPathTable builds a PathTable from raw path configuration.
func NewPathTable(p PathsConfig) PathTable {
	row := func(c Category, a AssetPaths) Entry {
		return Entry{Category: c, Src: a.Src, Entry: a.Entry, Dest: a.Dest}
	}
	return PathTable{
		root: p.Root,
		entries: [5]Entry{
			row(CategoryStyles, p.Styles),
			row(CategoryScripts, p.Scripts),
			row(CategoryTemplates, p.Templates),
			row(CategoryImages, p.Images),
			row(CategoryFonts, p.Fonts),
		},
	}
}

// Root is the output directory every destination lives under.
func (t PathTable) Root() string {
	return t.root
}

// Lookup returns the entry for a category.
func (t PathTable) Lookup(c Category) (Entry, error) {
	for _, e := range t.entries {
		if e.Category == c {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("unknown asset category %q", c)
}

// MustLookup is Lookup for the built-in categories.
func (t PathTable) MustLookup(c Category) Entry {
	e, err := t.Lookup(c)
	if err != nil {
		panic(err)
	}
	return e
}

// Entries returns a copy of all rows.
func (t PathTable) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries[:])
	return out
}
