// pkg/store/store.go
//
// File-backed secret store. Every mutating operation reloads the document
// from disk, applies the change, and writes the whole document back with
// mode 0600. The store raises the bar on accidental exposure; it is not an
// encrypted vault and does not claim to be one.

package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound     = cerr.New("secret not found")
	ErrDuplicateRef = cerr.New("ref already exists")
	ErrCorrupted    = cerr.New("secret store file is corrupted")
	ErrInvalidRef   = cerr.New("invalid ref")
)

var (
	refPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

// IsUUIDv4 reports whether s is a v4 uuid literal (lowercase form).
func IsUUIDv4(s string) bool {
	return uuidV4Pattern.MatchString(s)
}

// Store is a file-backed secret store. Operations are serialized by a
// single mutex around the read-modify-write cycle.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store over the given file path. The file is created lazily
// on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Add validates ref, generates a v4 uuid, and appends a new entry.
func (s *Store) Add(ref, value string, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !refPattern.MatchString(ref) {
		return "", cerr.Wrapf(ErrInvalidRef, "ref %q must match %s", ref, refPattern.String())
	}
	if IsUUIDv4(ref) {
		return "", cerr.Wrapf(ErrInvalidRef, "ref %q must not be a uuid", ref)
	}

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	for _, entry := range doc.Secrets {
		if entry.Ref == ref {
			return "", cerr.Wrapf(ErrDuplicateRef, "ref %q", ref)
		}
	}

	if tags == nil {
		tags = []string{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	entry := Secret{
		UUID:      uuid.NewString(),
		Ref:       ref,
		Value:     value,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.Secrets = append(doc.Secrets, entry)

	if err := s.save(doc); err != nil {
		return "", err
	}
	return entry.UUID, nil
}

// Remove deletes the entry with the given uuid.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i, entry := range doc.Secrets {
		if entry.UUID == id {
			doc.Secrets = append(doc.Secrets[:i], doc.Secrets[i+1:]...)
			return s.save(doc)
		}
	}
	return cerr.Wrapf(ErrNotFound, "uuid %s", id)
}

// List returns metadata for every secret, in insertion order.
func (s *Store) List() ([]ListingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	items := make([]ListingItem, 0, len(doc.Secrets))
	for _, entry := range doc.Secrets {
		items = append(items, entry.listing())
	}
	return items, nil
}

// GetMetadata returns the metadata view of the secret with the given uuid.
func (s *Store) GetMetadata(id string) (ListingItem, error) {
	entry, err := s.find(func(e Secret) bool { return e.UUID == id })
	if err != nil {
		return ListingItem{}, cerr.Wrapf(ErrNotFound, "uuid %s", id)
	}
	return entry.listing(), nil
}

// GetByRef returns the metadata view of the secret with the given ref.
func (s *Store) GetByRef(ref string) (ListingItem, error) {
	entry, err := s.find(func(e Secret) bool { return e.Ref == ref })
	if err != nil {
		return ListingItem{}, cerr.Wrapf(ErrNotFound, "ref %q", ref)
	}
	return entry.listing(), nil
}

// GetValue returns the raw value of the secret with the given uuid.
func (s *Store) GetValue(id string) (string, error) {
	entry, err := s.find(func(e Secret) bool { return e.UUID == id })
	if err != nil {
		return "", cerr.Wrapf(ErrNotFound, "uuid %s", id)
	}
	return entry.Value, nil
}

// GetValueByRef returns the raw value of the secret with the given ref.
func (s *Store) GetValueByRef(ref string) (string, error) {
	entry, err := s.find(func(e Secret) bool { return e.Ref == ref })
	if err != nil {
		return "", cerr.Wrapf(ErrNotFound, "ref %q", ref)
	}
	return entry.Value, nil
}

// Resolve dispatches refOrUUID to the uuid or ref lookup and returns the
// metadata view. The NotFound message preserves which path was taken.
func (s *Store) Resolve(refOrUUID string) (ListingItem, error) {
	if IsUUIDv4(refOrUUID) {
		return s.GetMetadata(refOrUUID)
	}
	return s.GetByRef(refOrUUID)
}

// ResolveRef is Resolve returning the secret's value alongside its uuid.
// Used only by the injector for placeholder substitution.
func (s *Store) ResolveRef(refOrUUID string) (ResolvedSecret, error) {
	var match func(Secret) bool
	if IsUUIDv4(refOrUUID) {
		match = func(e Secret) bool { return e.UUID == refOrUUID }
	} else {
		match = func(e Secret) bool { return e.Ref == refOrUUID }
	}
	entry, err := s.find(match)
	if err != nil {
		return ResolvedSecret{}, cerr.Wrapf(ErrNotFound, "%q", refOrUUID)
	}
	return ResolvedSecret{UUID: entry.UUID, Value: entry.Value}, nil
}

func (s *Store) find(match func(Secret) bool) (Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Secret{}, err
	}
	for _, entry := range doc.Secrets {
		if match(entry) {
			return entry, nil
		}
	}
	return Secret{}, ErrNotFound
}

// load reads and parses the store file. A missing file yields an empty
// document; a parse failure is Corrupted and never silently replaced with
// an empty store.
func (s *Store) load() (*storeFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &storeFile{Secrets: []Secret{}}, nil
		}
		return nil, cerr.Wrapf(err, "failed to read secret store %s", s.path)
	}
	var doc storeFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cerr.Wrapf(ErrCorrupted, "%s: %v", s.path, err)
	}
	if doc.Secrets == nil {
		doc.Secrets = []Secret{}
	}
	return &doc, nil
}

// save writes the whole document back and reapplies mode 0600.
func (s *Store) save(doc *storeFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return cerr.Wrapf(err, "failed to create store directory for %s", s.path)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return cerr.Wrap(err, "failed to encode secret store")
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return cerr.Wrapf(err, "failed to write secret store %s", s.path)
	}
	return os.Chmod(s.path, 0600)
}
