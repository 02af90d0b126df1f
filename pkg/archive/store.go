// Package archive keeps generated reviews in a JSON file.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/review"
)

// Store is the review archive.
type Store interface {
	review.Store

	// List returns reviews, newest first, optionally filtered by kind.
	List(kind exercise.Kind) ([]*review.Review, error)

	// Update replaces an existing review.
	Update(r *review.Review) error

	// Delete removes a review.
	Delete(id string) error

	Count() int
}

// JSONStore implements Store with a single JSON file rewritten atomically
// on every change.
type JSONStore struct {
	path    string
	reviews map[string]*review.Review
	mu      sync.RWMutex
}

type storeData struct {
	Version   int              `json:"version"`
	UpdatedAt string           `json:"updated_at"`
	Reviews   []*review.Review `json:"reviews"`
}

const currentVersion = 1

// NewJSONStore opens the archive at path. The file is created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:    path,
		reviews: make(map[string]*review.Review),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("archive: load: %w", err)
		}
	}
	return s, nil
}

// DefaultPath returns ~/.rehearse/reviews.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("archive: home directory: %w", err)
	}
	return filepath.Join(home, ".rehearse", "reviews.json"), nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	for _, r := range stored.Reviews {
		s.reviews[r.ID] = r
	}
	return nil
}

// persist must be called with mu held.
func (s *JSONStore) persist() error {
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Reviews:   s.sorted(""),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("archive: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: rename temp file: %w", err)
	}
	return nil
}

// sorted must be called with mu held.
func (s *JSONStore) sorted(kind exercise.Kind) []*review.Review {
	out := make([]*review.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Save creates or replaces a review, assigning an ID and timestamps when
// missing.
func (s *JSONStore) Save(r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	s.reviews[r.ID] = r
	return s.persist()
}

// Get returns a copy of the review with id.
func (s *JSONStore) Get(id string) (*review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", review.ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// List returns reviews newest first. An empty kind lists everything.
func (s *JSONStore) List(kind exercise.Kind) ([]*review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(kind), nil
}

// Update replaces an existing review.
func (s *JSONStore) Update(r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[r.ID]; !ok {
		return fmt.Errorf("%w: %s", review.ErrNotFound, r.ID)
	}
	r.UpdatedAt = time.Now()
	s.reviews[r.ID] = r
	return s.persist()
}

// Delete removes a review.
func (s *JSONStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[id]; !ok {
		return fmt.Errorf("%w: %s", review.ErrNotFound, id)
	}
	delete(s.reviews, id)
	return s.persist()
}

// Count returns the number of stored reviews.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reviews)
}

// Path returns the archive file path.
func (s *JSONStore) Path() string {
	return s.path
}

var _ Store = (*JSONStore)(nil)
