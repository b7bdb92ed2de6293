package session

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore persists session records in a single file rewritten in full
// on every mutation. The serialized record list is signed with
// HMAC-SHA256 under a server secret; a record list whose signature does
// not verify is discarded entirely rather than partially trusted.
type FileStore struct {
	mu     sync.Mutex
	path   string
	secret []byte
	recs   map[string]*Record
}

// NewFileStore loads (or creates) the signed store at path. A missing
// file starts empty. A present file with a bad or missing signature also
// starts empty, and the event is logged at error level so operators see
// the data loss instead of it being swallowed.
func NewFileStore(path string, secret []byte) (*FileStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: file store requires a signing secret")
	}
	s := &FileStore{
		path:   path,
		secret: secret,
		recs:   make(map[string]*Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("session: read store file: %w", err)
	}

	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		log.Error().Str("path", s.path).Msg("Session store file has no signature, discarding contents")
		return nil
	}
	payload, sigHex := data[:idx], bytes.TrimSpace(data[idx+1:])

	sig, err := hex.DecodeString(string(sigHex))
	if err != nil || !hmac.Equal(sig, s.sign(payload)) {
		log.Error().Str("path", s.path).Msg("Session store signature mismatch, discarding contents")
		return nil
	}

	var recs []*Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Session store payload corrupt, discarding contents")
		return nil
	}
	for _, rec := range recs {
		s.recs[rec.ID] = rec
	}
	return nil
}

func (s *FileStore) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// flush rewrites the whole file: serialized record list, newline, hex
// signature. Written via a temp file and rename so a crash mid-write
// never leaves a half-signed store.
func (s *FileStore) flush() error {
	recs := make([]*Record, 0, len(s.recs))
	for _, rec := range s.recs {
		recs = append(recs, rec)
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("session: marshal store: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(payload)
	buf.WriteByte('\n')
	buf.WriteString(hex.EncodeToString(s.sign(payload)))

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("session: create store dir: %w", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("session: write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: replace store file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *FileStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.recs[rec.ID]
	s.recs[rec.ID] = rec.Clone()
	if err := s.flush(); err != nil {
		// Keep the in-memory view consistent with the file.
		if had {
			s.recs[rec.ID] = prev
		} else {
			delete(s.recs, rec.ID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.recs[id]
	if !had {
		return nil
	}
	delete(s.recs, id)
	if err := s.flush(); err != nil {
		s.recs[id] = prev
		return err
	}
	return nil
}

func (s *FileStore) ListByPlayer(ctx context.Context, playerID int64) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.recs {
		if rec.PlayerID == playerID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *FileStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make(map[string]*Record)
	for id, rec := range s.recs {
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			removed[id] = rec
			delete(s.recs, id)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.flush(); err != nil {
		for id, rec := range removed {
			s.recs[id] = rec
		}
		return 0, err
	}
	return len(removed), nil
}
