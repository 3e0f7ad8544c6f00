package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	logx "isthisai/pkg/logx"
)

// compactEvery bounds journal growth: after this many writes the in-memory
// state is snapshotted and the journal truncated.
const compactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of cursor + ledger)
//   - <prefix>.journal.jsonl (append-only journal replayed on open)
//
// Ledger entries never expire; the journal is periodically compacted into
// the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	cursor  string
	replied map[string]struct{}

	writes int
}

// journalRecord is one replayable mutation. Op is "cursor" (Value holds the
// new fullname) or "mark" (ID holds the ledger entry).
type journalRecord struct {
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
	ID    string `json:"id,omitempty"`
}

type snapshotState struct {
	Cursor  string   `json:"cursor"`
	Replied []string `json:"replied"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		replied:      map[string]struct{}{},
	}
	_ = st.loadSnapshot(snapPath)
	_ = st.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	st.journalFile = jf
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Cursor(ctx context.Context) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

func (s *fileStore) SetCursor(ctx context.Context, fullname string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "cursor", Value: fullname}); err != nil {
		return err
	}
	s.cursor = fullname
	return nil
}

func (s *fileStore) HasProcessed(ctx context.Context, id string) (bool, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replied[id]
	return ok, nil
}

func (s *fileStore) MarkProcessed(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replied[id]; ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: "mark", ID: id}); err != nil {
		return err
	}
	s.replied[id] = struct{}{}
	return nil
}

// appendLocked writes one journal record, compacting periodically.
func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journalFile == nil {
		return errors.New("storage journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return errors.Wrap(err, "append journal")
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("storage compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := snapshotState{Cursor: s.cursor, Replied: make([]string, 0, len(s.replied))}
	for id := range s.replied {
		snap.Replied = append(snap.Replied, id)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshotState
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	s.cursor = snap.Cursor
	for _, id := range snap.Replied {
		s.replied[id] = struct{}{}
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "cursor":
			s.cursor = r.Value
		case "mark":
			if r.ID != "" {
				s.replied[r.ID] = struct{}{}
			}
		}
	}
	return sc.Err()
}
