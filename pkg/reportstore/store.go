// Package reportstore keeps generated report documents on disk for later
// download. Bodies are lz4-compressed with a JSON metadata sidecar, keyed
// by a random UUID, and expire after a TTL.
package reportstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrNotFound  = errors.New("report not found")
	ErrInvalidID = errors.New("invalid report id")
	ErrEmptyName = errors.New("document name is empty")
)

// DefaultTTL is how long documents are kept when no TTL is configured.
const DefaultTTL = time.Hour

// Document is a rendered report.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

// Meta describes a stored document.
type Meta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	Size        int64     `json:"size"`
	StoredSize  int64     `json:"stored_size"`
}

// Store is a directory of documents.
type Store struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	// mu serializes Sweep against Put so a fresh entry is never removed
	// between its two files being written.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long documents are kept.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates dir when needed and returns a store rooted there.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty store directory", fs.ErrInvalid)
	}

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// TTL returns the retention period.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores doc and returns its metadata.
func (s *Store) Put(ctx context.Context, doc Document) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, fmt.Errorf("put report: %w", err)
	}

	if doc.Name == "" {
		return Meta{}, ErrEmptyName
	}

	var compressed bytes.Buffer

	err := encodeBody(&compressed, doc.Body)
	if err != nil {
		return Meta{}, fmt.Errorf("compress report: %w", err)
	}

	meta := Meta{
		ID:          uuid.NewString(),
		Name:        filepath.Base(doc.Name),
		ContentType: doc.ContentType,
		CreatedAt:   s.now().UTC(),
		Size:        int64(len(doc.Body)),
		StoredSize:  int64(compressed.Len()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = writeFile(s.dir, meta.ID+bodyExtension, func(w io.Writer) error {
		_, writeErr := compressed.WriteTo(w)

		return writeErr
	})
	if err != nil {
		return Meta{}, err
	}

	err = writeFile(s.dir, meta.ID+metaExtension, func(w io.Writer) error {
		return encodeMeta(w, meta)
	})
	if err != nil {
		_ = os.Remove(s.path(meta.ID, bodyExtension))

		return Meta{}, err
	}

	s.logger.DebugContext(ctx, "report stored",
		"id", meta.ID,
		"name", meta.Name,
		"size", humanize.Bytes(uint64(meta.Size)),
		"stored", humanize.Bytes(uint64(meta.StoredSize)))

	return meta, nil
}

// Get loads a document by id. Expired entries are reported as ErrNotFound
// even before Sweep removes them.
func (s *Store) Get(ctx context.Context, id string) (Document, Meta, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, Meta{}, fmt.Errorf("get report: %w", err)
	}

	meta, err := s.Stat(id)
	if err != nil {
		return Document{}, Meta{}, err
	}

	if s.expired(meta, s.now()) {
		return Document{}, Meta{}, fmt.Errorf("%w: %s expired", ErrNotFound, id)
	}

	f, err := os.Open(s.path(id, bodyExtension))
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return Document{}, Meta{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	body, err := decodeBody(f)
	if err != nil {
		return Document{}, Meta{}, fmt.Errorf("decompress report %s: %w", id, err)
	}

	return Document{Name: meta.Name, ContentType: meta.ContentType, Body: body}, meta, nil
}

// Stat reads the metadata of id.
func (s *Store) Stat(id string) (Meta, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Meta{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	f, err := os.Open(s.path(id, metaExtension))
	if errors.Is(err, fs.ErrNotExist) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return Meta{}, fmt.Errorf("open report metadata: %w", err)
	}
	defer f.Close()

	meta, err := decodeMeta(f)
	if err != nil {
		return Meta{}, fmt.Errorf("read report metadata %s: %w", id, err)
	}

	return meta, nil
}

// Sweep removes entries created more than the TTL before now, plus any
// orphaned body without metadata. It returns the number of removed entries.
func (s *Store) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read store dir: %w", err)
	}

	var (
		removed int
		errs    []error
	)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, bodyExtension) || strings.HasPrefix(name, ".") {
			continue
		}

		id := strings.TrimSuffix(name, bodyExtension)

		meta, statErr := s.Stat(id)
		if statErr != nil && !errors.Is(statErr, ErrNotFound) {
			continue
		}

		if statErr == nil && !s.expired(meta, now) {
			continue
		}

		for _, ext := range []string{bodyExtension, metaExtension} {
			rmErr := os.Remove(s.path(id, ext))
			if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				errs = append(errs, rmErr)
			}
		}

		removed++
	}

	if removed > 0 {
		s.logger.Info("expired reports removed", "count", removed, "ttl", s.ttl)
	}

	return removed, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := s.Sweep(s.now())
			if err != nil {
				s.logger.WarnContext(ctx, "report sweep failed", "error", err)
			}
		}
	}
}

// Ready checks that the store directory exists and is writable.
func (s *Store) Ready(context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("report store not writable: %w", err)
	}

	name := f.Name()

	return errors.Join(f.Close(), os.Remove(name))
}

func (s *Store) expired(meta Meta, now time.Time) bool {
	return now.Sub(meta.CreatedAt) > s.ttl
}

func (s *Store) path(id, ext string) string {
	return filepath.Join(s.dir, id+ext)
}
