// Package catalog loads the field definitions and categories the resolver
// knows about.
package catalog

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/listing-resolver/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is the set of known fields and their categories.
type Catalog struct {
	fields     map[string]FieldDef
	order      []string
	categories map[string][]string
}

// FieldDef is one field entry of the catalog file.
type FieldDef struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Label         string   `yaml:"label"`
	Required      bool     `yaml:"required"`
	EnumOptions   []string `yaml:"enum_options"`
	Min           *float64 `yaml:"min"`
	Max           *float64 `yaml:"max"`
	Pattern       string   `yaml:"pattern"`
	ResearchQuery string   `yaml:"research_query"`
}

type file struct {
	Fields     []FieldDef          `yaml:"fields"`
	Categories map[string][]string `yaml:"categories"`
}

// Default returns the embedded catalog and panics if it is invalid.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from path. An empty path returns the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	c := &Catalog{
		fields:     make(map[string]FieldDef, len(f.Fields)),
		categories: make(map[string][]string, len(f.Categories)),
	}
	for _, fd := range f.Fields {
		if _, dup := c.fields[fd.Name]; dup {
			return nil, eris.Errorf("catalog: duplicate field %q", fd.Name)
		}
		req := fd.request()
		if err := req.Validate(); err != nil {
			return nil, eris.Wrap(err, "catalog")
		}
		if err := checkResearchQuery(fd.ResearchQuery); err != nil {
			return nil, eris.Wrapf(err, "catalog: field %s", fd.Name)
		}
		c.fields[fd.Name] = fd
		c.order = append(c.order, fd.Name)
	}
	for name, fields := range f.Categories {
		for _, fn := range fields {
			if _, ok := c.fields[fn]; !ok {
				return nil, eris.Errorf("catalog: category %s references unknown field %q", name, fn)
			}
		}
		c.categories[name] = fields
	}
	return c, nil
}

// checkResearchQuery allows at most one %s verb, which receives the vehicle.
func checkResearchQuery(q string) error {
	q = strings.ReplaceAll(q, "%%", "")
	verbs := strings.Count(q, "%")
	switch {
	case verbs == 0:
		return nil
	case verbs > 1 || strings.Count(q, "%s") != 1:
		return eris.Errorf("research_query %q must contain at most one %%s and no other verbs", q)
	}
	return nil
}

func (fd FieldDef) request() model.FieldRequest {
	return model.FieldRequest{
		FieldName: fd.Name,
		FieldType: model.FieldType(fd.Type),
		Label:     fd.Label,
		Constraints: model.Constraints{
			EnumOptions: fd.EnumOptions,
			Min:         fd.Min,
			Max:         fd.Max,
			Pattern:     fd.Pattern,
			Required:    fd.Required,
		},
	}
}

// Request builds a validated FieldRequest for name. Unknown names yield an
// unconstrained string request and ok=false.
func (c *Catalog) Request(name string) (model.FieldRequest, bool) {
	fd, ok := c.fields[name]
	if !ok {
		return model.FieldRequest{FieldName: name, FieldType: model.FieldTypeString}, false
	}
	req := fd.request()
	// Already validated at load; this compiles the pattern for the copy.
	_ = req.Validate()
	return req, true
}

// Requests builds requests for names in order.
func (c *Catalog) Requests(names []string) []model.FieldRequest {
	out := make([]model.FieldRequest, 0, len(names))
	for _, n := range names {
		req, _ := c.Request(n)
		out = append(out, req)
	}
	return out
}

// Category returns the declaration-ordered fields of a category.
func (c *Catalog) Category(name string) ([]string, bool) {
	fields, ok := c.categories[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out, true
}

// Categories returns the known category names.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.categories))
	for name := range c.categories {
		out = append(out, name)
	}
	return out
}

// Fields returns all field names in file order.
func (c *Catalog) Fields() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ResearchTemplate returns the field's research query template, or "" when
// the field has none.
func (c *Catalog) ResearchTemplate(name string) string {
	return c.fields[name].ResearchQuery
}
