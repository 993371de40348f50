// Package s3config persists named S3 connection profiles to a single JSON
// document.
//
// The document is read-modify-written under an exclusive lock so concurrent
// admin edits cannot lose each other, and persisted with write-then-rename
// so a crash never leaves a half-written settings file. It is
// pretty-printed on purpose: operators edit it by hand.
package s3config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrNotFound indicates no profile has the requested id.
var ErrNotFound = errors.New("s3 config not found")

// Profile is one named S3 connection configuration.
//
// SecretAccessKey is stored in plaintext in the settings document. List
// surfaces must redact it; GetByID may return it so the settings UI can
// round-trip an edit.
type Profile struct {
	ID              string `json:"id"`
	Name            string `json:"name" validate:"required"`
	Region          string `json:"region" validate:"required"`
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url"`
	AccessKeyID     string `json:"accessKeyId" validate:"required"`
	SecretAccessKey string `json:"secretAccessKey" validate:"required"`
	Bucket          string `json:"bucket" validate:"required"`
	Prefix          string `json:"prefix,omitempty"`
	IsDefault       bool   `json:"isDefault,omitempty"`
	Active          bool   `json:"active,omitempty"`
}

// Redacted returns a copy safe for list responses.
func (p Profile) Redacted() Profile {
	p.SecretAccessKey = ""
	return p
}

type document struct {
	S3Configs []Profile `json:"s3Configs"`
}

// Store is the file-backed profile collection.
type Store struct {
	path     string
	validate *validator.Validate

	mu sync.RWMutex
}

// NewStore opens (or will lazily create) the settings document at path.
func NewStore(path string) *Store {
	return &Store{path: path, validate: validator.New()}
}

// List returns every profile with secrets redacted.
func (s *Store) List() ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(doc.S3Configs))
	for _, p := range doc.S3Configs {
		profiles = append(profiles, p.Redacted())
	}
	return profiles, nil
}

// GetByID returns the full profile, secret included.
func (s *Store) GetByID(id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, p := range doc.S3Configs {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Create validates the profile, mints its id, and persists it.
func (s *Store) Create(p Profile) (*Profile, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	doc.S3Configs = append(doc.S3Configs, p)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update replaces the stored profile with the same id.
//
// An empty incoming SecretAccessKey keeps the stored one, so the settings
// UI can submit a redacted profile unchanged.
func (s *Store) Update(id string, p Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	for i, existing := range doc.S3Configs {
		if existing.ID != id {
			continue
		}
		p.ID = id
		if p.SecretAccessKey == "" {
			p.SecretAccessKey = existing.SecretAccessKey
		}
		if err := s.validate.Struct(p); err != nil {
			return nil, fmt.Errorf("invalid s3 config: %w", err)
		}
		doc.S3Configs[i] = p
		if err := s.write(doc); err != nil {
			return nil, err
		}
		return &p, nil
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Delete removes the profile. Callers must invalidate any live connections
// bound to the id (see the connection registry's OnProfileDeleted).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	kept := doc.S3Configs[:0]
	found := false
	for _, p := range doc.S3Configs {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	doc.S3Configs = kept
	return s.write(doc)
}

func (s *Store) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{S3Configs: []Profile{}}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if doc.S3Configs == nil {
		doc.S3Configs = []Profile{}
	}
	return &doc, nil
}

func (s *Store) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("stage settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("stage settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("stage settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
