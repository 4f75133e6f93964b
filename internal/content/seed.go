package content

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// SeedEntry is one record in a seed file. Type and description fall back
// to the page template when left empty.
type SeedEntry struct {
	Type        Type   `yaml:"type,omitempty"`
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
}

// SeedFile maps page -> key -> entry.
type SeedFile map[string]map[string]SeedEntry

func ParseSeed(b []byte) (SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// Seed writes every entry of f in page/key order and stops at the first
// invalid one. With overwrite unset, keys that already have a stored
// record are skipped. It returns how many records were written.
func (s *Service) Seed(ctx context.Context, f SeedFile, overwrite bool) (int, error) {
	pages := make([]string, 0, len(f))
	for p := range f {
		pages = append(pages, p)
	}
	sort.Strings(pages)

	written := 0
	for _, page := range pages {
		keys := make([]string, 0, len(f[page]))
		for k := range f[page] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := PageKey{Page: page, Key: k}
			if !overwrite {
				if _, err := s.repo.Get(ctx, key); err == nil {
					continue
				}
			}
			e := f[page][k]
			fields := Fields{Value: &e.Value}
			if e.Type != "" {
				t := e.Type
				fields.Type = &t
			}
			if e.Description != "" {
				d := e.Description
				fields.Description = &d
			}
			if _, err := s.Save(ctx, key, fields); err != nil {
				return written, fmt.Errorf("seed %s: %w", key, err)
			}
			written++
		}
	}
	s.log.Info().Int("written", written).Msg("content seeded")
	return written, nil
}
