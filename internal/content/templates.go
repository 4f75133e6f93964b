package content

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Template struct {
	Key         string `yaml:"key" json:"key"`
	Type        Type   `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example,omitempty" json:"example,omitempty"`
}

// Templates maps a page name to its editable fields.
type Templates map[string][]Template

//go:embed templates.yaml
var defaultTemplates []byte

func DefaultTemplates() Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("embedded templates: %v", err))
	}
	return t
}

func LoadTemplates(path string) (Templates, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplates(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(b)
}

func ParseTemplates(b []byte) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for page, fields := range t {
		seen := map[string]bool{}
		for _, f := range fields {
			if f.Key == "" {
				return nil, fmt.Errorf("page %s: template without key", page)
			}
			if seen[f.Key] {
				return nil, fmt.Errorf("page %s: duplicate key %s", page, f.Key)
			}
			if !f.Type.Valid() {
				return nil, fmt.Errorf("page %s key %s: invalid type %q", page, f.Key, f.Type)
			}
			seen[f.Key] = true
		}
	}
	return t, nil
}

func (t Templates) Pages() []string {
	out := make([]string, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (t Templates) HasPage(page string) bool {
	_, ok := t[page]
	return ok
}

func (t Templates) Lookup(page, key string) (Template, bool) {
	for _, f := range t[page] {
		if f.Key == key {
			return f, true
		}
	}
	return Template{}, false
}
