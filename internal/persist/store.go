package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// Store is a key-value store kept as one JSON document on disk. Every Set
// rewrites the whole document through a temp file and rename, so a reader
// never observes a partial write.
type Store struct {
	path string
	log  pslog.Logger
	mu   sync.Mutex
}

// NewStore constructs a store backed by the file at path.
func NewStore(path string) (*Store, error) {
	return NewStoreWithLogger(path, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("store_path", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Get returns the value stored under key. ok is false when the key or the
// whole file is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		if s.log != nil {
			s.log.Warn("store load failed", "key", key, "err", err)
		}
		return nil, false, err
	}
	value, ok := doc[key]
	if !ok {
		if s.log != nil {
			s.log.Debug("store load miss", "key", key)
		}
		return nil, false, nil
	}
	if s.log != nil {
		s.log.Trace("store load ok", "key", key, "bytes", len(value))
	}
	return append([]byte(nil), value...), true, nil
}

// Set replaces the value stored under key. value must be valid JSON.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return errors.New("store value must be valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		if s.log != nil {
			s.log.Warn("store save failed", "key", key, "err", err)
		}
		return err
	}
	doc[key] = json.RawMessage(append([]byte(nil), value...))
	if err := s.write(doc); err != nil {
		if s.log != nil {
			s.log.Warn("store save failed", "key", key, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("store save ok", "key", key, "bytes", len(value))
	}
	return nil
}

func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	doc := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
