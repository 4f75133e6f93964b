package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/content"
)

// URLPrefix is where stored files are served from.
const URLPrefix = "/uploads/"

var (
	ErrTooLarge    = errors.New("upload exceeds size limit")
	ErrWrongKind   = errors.New("file type does not match content type")
	ErrNotMedia    = errors.New("content type does not accept uploads")
	ErrEmptyUpload = errors.New("empty upload")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

var allowedByKind = map[content.Type]func(string) bool{
	content.TypeImage: func(ct string) bool { return strings.HasPrefix(ct, "image/") },
	content.TypeVideo: func(ct string) bool { return strings.HasPrefix(ct, "video/") },
	content.TypePDF:   func(ct string) bool { return ct == "application/pdf" },
}

// File is a stored upload.
type File struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// LocalStore writes uploads under a directory on disk, grouped by
// content key: <dir>/cms/<key>/<unix ms>_<name>.
type LocalStore struct {
	dir      string
	maxBytes int64
	log      zerolog.Logger
	now      func() time.Time
}

func NewLocalStore(dir string, maxBytes int64, log zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes, log: log, now: time.Now}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save sniffs the payload and stores it when it matches kind.
func (s *LocalStore) Save(ctx context.Context, kind content.Type, key, filename string, r io.Reader) (File, error) {
	accept, ok := allowedByKind[kind]
	if !ok {
		return File{}, fmt.Errorf("%w: %s", ErrNotMedia, kind)
	}
	if strings.TrimSpace(key) == "" {
		return File{}, content.ErrInvalidKey
	}
	key = sanitize(key)

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return File{}, err
	}
	head = head[:n]
	if n == 0 {
		return File{}, ErrEmptyUpload
	}
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !accept(ct) {
		return File{}, fmt.Errorf("%w: got %s for %s", ErrWrongKind, ct, kind)
	}

	name := fmt.Sprintf("%d_%s", s.now().UnixMilli(), sanitize(filepath.Base(filename)))
	rel := path.Join("cms", key, name)
	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return File{}, err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return File{}, err
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return File{}, err
	}
	s.log.Info().Str("path", rel).Str("content_type", ct).Int64("size", written).Msg("upload stored")
	return File{URL: URLPrefix + rel, ContentType: ct, Size: written}, nil
}

func sanitize(name string) string {
	name = unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" {
		return "file"
	}
	return name
}
