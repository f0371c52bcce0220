package credstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const fileFormatVersion = 1

// fileDocument is the on-disk layout. Entries are sealed when Salt is set.
type fileDocument struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt,omitempty"`
	Entries map[string]string `json:"entries"`
}

// FileBackend stores all keys in one JSON document. Every write replaces the
// document through a temp file and rename, so a crash mid-write leaves either
// the old or the new pair on disk.
type FileBackend struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithPassphrase seals every value with AES-GCM under a key derived from
// passphrase.
func WithPassphrase(passphrase string) FileOption {
	return func(f *FileBackend) { f.passphrase = passphrase }
}

// NewFileBackend creates a backend rooted at path.
func NewFileBackend(path string, opts ...FileOption) *FileBackend {
	f := &FileBackend{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FileBackend) Name() string { return "file" }

// Path returns the document location.
func (f *FileBackend) Path() string { return f.path }

// Sealed reports whether values are encrypted at rest.
func (f *FileBackend) Sealed() bool { return f.passphrase != "" }

func (f *FileBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}

	s, err := f.sealerFor(doc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := doc.Entries[k]
		if !ok {
			continue
		}
		if s != nil {
			if v, err = s.open(v); err != nil {
				return nil, fmt.Errorf("open %q: %w", k, err)
			}
		}
		out[k] = v
	}
	return out, nil
}

func (f *FileBackend) Put(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	if f.passphrase != "" && doc.Salt == "" {
		// A plaintext document being upgraded to sealed needs every
		// existing entry re-sealed under the new salt.
		if err := f.resealAll(doc); err != nil {
			return err
		}
	}

	s, err := f.sealerFor(doc)
	if err != nil {
		return err
	}

	for k, v := range values {
		if s != nil {
			if v, err = s.seal(v); err != nil {
				return fmt.Errorf("seal %q: %w", k, err)
			}
		}
		doc.Entries[k] = v
	}
	return f.write(doc)
}

func (f *FileBackend) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	for _, k := range keys {
		delete(doc.Entries, k)
	}

	if len(doc.Entries) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", f.path, err)
		}
		return nil
	}
	return f.write(doc)
}

func (f *FileBackend) read() (*fileDocument, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDocument{Version: fileFormatVersion, Entries: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]string{}
	}
	return &doc, nil
}

func (f *FileBackend) sealerFor(doc *fileDocument) (*sealer, error) {
	if doc.Salt == "" {
		if f.passphrase != "" && len(doc.Entries) == 0 {
			salt, err := newSalt()
			if err != nil {
				return nil, err
			}
			doc.Salt = base64.StdEncoding.EncodeToString(salt)
		} else {
			return nil, nil
		}
	}
	if f.passphrase == "" {
		return nil, fmt.Errorf("%s is sealed; set the store passphrase", f.path)
	}

	salt, err := base64.StdEncoding.DecodeString(doc.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return newSealer(f.passphrase, salt), nil
}

func (f *FileBackend) resealAll(doc *fileDocument) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	s := newSealer(f.passphrase, salt)
	for k, v := range doc.Entries {
		sealed, err := s.seal(v)
		if err != nil {
			return fmt.Errorf("seal %q: %w", k, err)
		}
		doc.Entries[k] = sealed
	}
	doc.Salt = base64.StdEncoding.EncodeToString(salt)
	return nil
}

func (f *FileBackend) write(doc *fileDocument) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
