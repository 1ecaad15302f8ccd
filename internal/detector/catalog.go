package detector

import "fmt"

// Catalog is an ordered, name-keyed set of definitions.
type Catalog struct {
	defs   []*Definition
	byName map[string]*Definition
}

func NewCatalog(defs []*Definition) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, dup := c.byName[d.Name()]; dup {
			return nil, fmt.Errorf("duplicate detector name %q", d.Name())
		}
		c.byName[d.Name()] = d
		c.defs = append(c.defs, d)
	}
	return c, nil
}

func (c *Catalog) Get(name string) (*Definition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

func (c *Catalog) All() []*Definition {
	return append([]*Definition(nil), c.defs...)
}

func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name()
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.defs)
}
