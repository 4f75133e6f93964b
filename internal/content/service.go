package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound    = errors.New("content not found")
	ErrUnknownPage = errors.New("unknown page")
	ErrInvalidKey  = errors.New("invalid content key")
)

// Repository is the content store contract. Upsert merges: fields left
// nil keep their stored value.
type Repository interface {
	Get(ctx context.Context, key PageKey) (Record, error)
	Upsert(ctx context.Context, key PageKey, f Fields) (Record, error)
	ListByPage(ctx context.Context, page string) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo      Repository
	templates Templates
	log       zerolog.Logger
}

func NewService(repo Repository, templates Templates, log zerolog.Logger) *Service {
	return &Service{repo: repo, templates: templates, log: log}
}

func (s *Service) Templates() Templates { return s.templates }

// Entry is one editable field as the dashboard shows it: the stored
// record when there is one, otherwise the template default.
type Entry struct {
	Key         string  `json:"key"`
	Type        Type    `json:"type"`
	Description string  `json:"description"`
	Example     string  `json:"example,omitempty"`
	Record      *Record `json:"record,omitempty"`
}

func (s *Service) checkKey(key PageKey) error {
	if !s.templates.HasPage(key.Page) {
		return fmt.Errorf("%w: %q", ErrUnknownPage, key.Page)
	}
	k := strings.TrimSpace(key.Key)
	if k == "" || k != key.Key || strings.ContainsAny(k, "/ ") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key.Key)
	}
	return nil
}

// Page lists the template fields of a page merged with stored records.
// Stored keys without a template are appended after the template order.
func (s *Service) Page(ctx context.Context, page string) ([]Entry, error) {
	if !s.templates.HasPage(page) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	records, err := s.repo.ListByPage(ctx, page)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Record, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	out := make([]Entry, 0, len(records)+len(s.templates[page]))
	for _, tpl := range s.templates[page] {
		e := Entry{Key: tpl.Key, Type: tpl.Type, Description: tpl.Description, Example: tpl.Example}
		if r, ok := byKey[tpl.Key]; ok {
			rec := r
			e.Record = &rec
			e.Type = r.Value.Type()
			delete(byKey, tpl.Key)
		}
		out = append(out, e)
	}
	for _, r := range records {
		if _, extra := byKey[r.Key]; !extra {
			continue
		}
		rec := r
		out = append(out, Entry{Key: r.Key, Type: r.Value.Type(), Description: r.Description, Record: &rec})
	}
	return out, nil
}

// Public returns the stored values of a page keyed by content key.
func (s *Service) Public(ctx context.Context, page string) (map[string]any, error) {
	if !s.templates.HasPage(page) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	records, err := s.repo.ListByPage(ctx, page)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(records))
	for _, r := range records {
		out[r.Key] = r.Value.Public()
	}
	return out, nil
}

// Save validates the merged value and writes it. A new key takes its
// type from the page template unless one is given.
func (s *Service) Save(ctx context.Context, key PageKey, f Fields) (Record, error) {
	if err := s.checkKey(key); err != nil {
		return Record{}, err
	}
	existing, err := s.repo.Get(ctx, key)
	var cur *Record
	switch {
	case err == nil:
		cur = &existing
	case errors.Is(err, ErrNotFound):
		if f.Type == nil {
			if tpl, ok := s.templates.Lookup(key.Page, key.Key); ok {
				t := tpl.Type
				f.Type = &t
			}
		}
		if f.Description == nil {
			if tpl, ok := s.templates.Lookup(key.Page, key.Key); ok {
				d := tpl.Description
				f.Description = &d
			}
		}
	default:
		return Record{}, err
	}
	if _, err := Merge(cur, key, f); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Upsert(ctx, key, f)
	if err != nil {
		s.log.Error().Err(err).Str("page", key.Page).Str("key", key.Key).Msg("content save failed")
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}
