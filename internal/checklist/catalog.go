package checklist

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/diewo77/ejaar/internal/lifecycle"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrUnknownDocumentType is returned for identifiers absent from the catalog.
var ErrUnknownDocumentType = errors.New("unknown document type")

// Label holds one text per language code.
type Label map[string]string

// In returns the text for lang, falling back to French then to any value.
func (l Label) In(lang string) string {
	if s, ok := l[lang]; ok && s != "" {
		return s
	}
	if s, ok := l["fr"]; ok {
		return s
	}
	for _, s := range l {
		return s
	}
	return ""
}

// DocumentType is one slot of the checklist.
type DocumentType struct {
	ID       string `yaml:"id" json:"id"`
	Label    Label  `yaml:"label" json:"label"`
	Required bool   `yaml:"required" json:"required"`
	Section  string `yaml:"-" json:"section"`
}

// Section groups document types uploaded by the same roles.
type Section struct {
	ID        string           `yaml:"id" json:"id"`
	Label     Label            `yaml:"label" json:"label"`
	Uploaders []lifecycle.Role `yaml:"uploaders" json:"uploaders"`
	Documents []DocumentType   `yaml:"documents" json:"documents"`
}

// Catalog is the immutable list of sections and document types.
type Catalog struct {
	Sections []Section `yaml:"sections" json:"sections"`

	docs    map[string]DocumentType
	section map[string]int
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("checklist: decode catalog: %w", err)
	}
	if len(c.Sections) == 0 {
		return nil, errors.New("checklist: catalog has no sections")
	}
	c.docs = make(map[string]DocumentType)
	c.section = make(map[string]int)
	for i := range c.Sections {
		s := &c.Sections[i]
		if s.ID == "" {
			return nil, fmt.Errorf("checklist: section %d has no id", i)
		}
		if _, dup := c.section[s.ID]; dup {
			return nil, fmt.Errorf("checklist: duplicate section %q", s.ID)
		}
		c.section[s.ID] = i
		if len(s.Documents) == 0 {
			return nil, fmt.Errorf("checklist: section %q has no documents", s.ID)
		}
		for _, r := range s.Uploaders {
			if !r.Valid() {
				return nil, fmt.Errorf("checklist: section %q: %w: %q", s.ID, lifecycle.ErrUnknownRole, r)
			}
		}
		for j := range s.Documents {
			d := &s.Documents[j]
			if d.ID == "" {
				return nil, fmt.Errorf("checklist: section %q has a document without id", s.ID)
			}
			if _, dup := c.docs[d.ID]; dup {
				return nil, fmt.Errorf("checklist: duplicate document type %q", d.ID)
			}
			d.Section = s.ID
			c.docs[d.ID] = *d
		}
	}
	return &c, nil
}

var defaultCatalog = func() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}()

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog { return defaultCatalog }

// Lookup returns the document type with the given id.
func (c *Catalog) Lookup(id string) (DocumentType, error) {
	d, ok := c.docs[id]
	if !ok {
		return DocumentType{}, fmt.Errorf("%w: %q", ErrUnknownDocumentType, id)
	}
	return d, nil
}

// SectionOf returns the section holding the document type.
func (c *Catalog) SectionOf(docType string) (Section, error) {
	d, err := c.Lookup(docType)
	if err != nil {
		return Section{}, err
	}
	return c.Sections[c.section[d.Section]], nil
}

// CanUpload reports whether role may upload into the document type's section.
func (c *Catalog) CanUpload(role lifecycle.Role, docType string) bool {
	s, err := c.SectionOf(docType)
	if err != nil {
		return false
	}
	return slices.Contains(s.Uploaders, role)
}

// Documents lists every document type in display order.
func (c *Catalog) Documents() []DocumentType {
	var out []DocumentType
	for _, s := range c.Sections {
		out = append(out, s.Documents...)
	}
	return out
}

// Required lists the mandatory document types in display order.
func (c *Catalog) Required() []DocumentType {
	var out []DocumentType
	for _, d := range c.Documents() {
		if d.Required {
			out = append(out, d)
		}
	}
	return out
}
