package action

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLocale is used when a requested locale has no entries.
const DefaultLocale = "en"

//go:embed descriptions.yaml
var descriptionsYAML []byte

// Catalog holds user-facing descriptions keyed by locale and action kind.
type Catalog struct {
	entries map[string]map[Kind]string
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded description catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(descriptionsYAML)
		if err != nil {
			panic(fmt.Sprintf("action: embedded descriptions: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// ParseCatalog parses a YAML document of the form locale -> kind -> text.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	c := &Catalog{entries: make(map[string]map[Kind]string, len(raw))}
	for locale, byKind := range raw {
		m := make(map[Kind]string, len(byKind))
		for k, text := range byKind {
			m[Kind(k)] = text
		}
		c.entries[locale] = m
	}
	return c, nil
}

// Describe returns the description of kind in locale, falling back to
// DefaultLocale and finally to the wire name.
func (c *Catalog) Describe(locale string, kind Kind) string {
	if text, ok := c.entries[locale][kind]; ok {
		return text
	}
	if text, ok := c.entries[DefaultLocale][kind]; ok {
		return text
	}
	return string(kind)
}

// Locales returns the catalog's locales, sorted.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.entries))
	for l := range c.entries {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
