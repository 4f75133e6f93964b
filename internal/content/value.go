package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Type is the stored tag of a content value.
type Type string

const (
	TypeText  Type = "text"
	TypeHTML  Type = "html"
	TypeJSON  Type = "json"
	TypeImage Type = "image_url"
	TypeVideo Type = "video_url"
	TypePDF   Type = "pdf_url"
)

var ErrInvalidValue = errors.New("invalid content value")

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeHTML, TypeJSON, TypeImage, TypeVideo, TypePDF:
		return true
	}
	return false
}

func (t Type) IsMedia() bool {
	return t == TypeImage || t == TypeVideo || t == TypePDF
}

// Value is one of Text, HTML, Structured or Media.
type Value interface {
	Type() Type
	Raw() string
	// Public is the form handed to page renderers.
	Public() any
}

type Text string

func (v Text) Type() Type  { return TypeText }
func (v Text) Raw() string { return string(v) }
func (v Text) Public() any { return string(v) }

type HTML string

func (v HTML) Type() Type  { return TypeHTML }
func (v HTML) Raw() string { return string(v) }
func (v HTML) Public() any { return string(v) }

type Structured json.RawMessage

func (v Structured) Type() Type  { return TypeJSON }
func (v Structured) Raw() string { return string(v) }
func (v Structured) Public() any { return json.RawMessage(v) }

// Media references an uploaded or external image, video or document.
type Media struct {
	Kind Type
	URL  string
}

func (v Media) Type() Type  { return v.Kind }
func (v Media) Raw() string { return v.URL }
func (v Media) Public() any { return map[string]string{"kind": string(v.Kind), "url": v.URL} }

// Decode checks raw against the rules of its tag and returns the variant.
func Decode(t Type, raw string) (Value, error) {
	switch t {
	case TypeText:
		return Text(raw), nil
	case TypeHTML:
		return HTML(raw), nil
	case TypeJSON:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			trimmed = "null"
		}
		if !json.Valid([]byte(trimmed)) {
			return nil, fmt.Errorf("%w: json content does not parse", ErrInvalidValue)
		}
		return Structured(trimmed), nil
	case TypeImage, TypeVideo, TypePDF:
		u := strings.TrimSpace(raw)
		if u == "" {
			return Media{Kind: t}, nil
		}
		if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
			return Media{Kind: t, URL: u}, nil
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, fmt.Errorf("%w: %s must be an http(s) URL or a site path", ErrInvalidValue, t)
		}
		return Media{Kind: t, URL: u}, nil
	}
	return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidValue, t)
}

type PageKey struct {
	Page string
	Key  string
}

func (k PageKey) String() string { return k.Page + "/" + k.Key }

type Record struct {
	ID          string
	Page        string
	Key         string
	Value       Value
	Description string
	UpdatedAt   time.Time
}

func (r Record) PageKey() PageKey { return PageKey{Page: r.Page, Key: r.Key} }

type recordJSON struct {
	ID           string    `json:"id"`
	PageName     string    `json:"page_name"`
	ContentKey   string    `json:"content_key"`
	ContentType  Type      `json:"content_type"`
	ContentValue string    `json:"content_value"`
	Description  string    `json:"description"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{ID: r.ID, PageName: r.Page, ContentKey: r.Key, Description: r.Description, UpdatedAt: r.UpdatedAt}
	if r.Value != nil {
		out.ContentType = r.Value.Type()
		out.ContentValue = r.Value.Raw()
	}
	return json.Marshal(out)
}

// Fields is a partial update. Nil members keep the stored value.
type Fields struct {
	Type        *Type   `json:"content_type,omitempty"`
	Value       *string `json:"content_value,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Merge applies f over an existing record (nil for a new one) and
// validates the result.
func Merge(existing *Record, key PageKey, f Fields) (Record, error) {
	var rec Record
	if existing != nil {
		rec = *existing
	} else {
		rec = Record{Page: key.Page, Key: key.Key}
	}
	t := TypeText
	raw := ""
	if rec.Value != nil {
		t = rec.Value.Type()
		raw = rec.Value.Raw()
	}
	if f.Type != nil {
		t = *f.Type
	}
	if f.Value != nil {
		raw = *f.Value
	}
	v, err := Decode(t, raw)
	if err != nil {
		return Record{}, err
	}
	rec.Value = v
	if f.Description != nil {
		rec.Description = *f.Description
	}
	return rec, nil
}
