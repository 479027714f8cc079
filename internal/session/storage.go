package session

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/talesmith-ai/talesmith/internal/history"
	"github.com/talesmith-ai/talesmith/internal/logger"
)

// Storage format version for forward compatibility
const storageVersion = 1

// StoredTurn is a turn in storage format. Content is stored as it sat in
// history, i.e. already sanitized; replay must not transform it again.
type StoredTurn struct {
	ID         string
	Role       string
	Content    string
	ToolCallID string
	CreatedAt  time.Time
}

// StoredSession is a session in storage format.
type StoredSession struct {
	Version   int
	ID        string
	CreatedAt time.Time
	SavedAt   time.Time
	Turns     []*StoredTurn
}

// Storage persists sessions as one gob file per session id.
type Storage struct {
	dir string
}

// NewStorage creates a storage rooted at dir, creating it if needed.
func NewStorage(dir string) (*Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes the session's current turn window to disk.
func (s *Storage) Save(sess *Session) error {
	turns := sess.History.Turns()
	stored := &StoredSession{
		Version:   storageVersion,
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		SavedAt:   time.Now(),
		Turns:     make([]*StoredTurn, 0, len(turns)),
	}
	for _, t := range turns {
		stored.Turns = append(stored.Turns, &StoredTurn{
			ID:         t.ID,
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
			CreatedAt:  t.CreatedAt,
		})
	}

	path := s.path(sess.ID)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(stored); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return os.Rename(tmp, path)
}

// Load reads a persisted session and rebuilds its history by replaying the
// stored turns in original order through the same eviction window as live
// operation.
func (s *Storage) Load(id string, window int) (*Session, error) {
	file, err := os.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", id, err)
	}
	defer file.Close()

	var stored StoredSession
	if err := gob.NewDecoder(file).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if stored.Version != storageVersion {
		return nil, fmt.Errorf("session %s has unsupported storage version %d", id, stored.Version)
	}

	sess := &Session{
		ID:        stored.ID,
		CreatedAt: stored.CreatedAt,
		History:   history.New(window),
	}
	for _, t := range stored.Turns {
		sess.History.Replay(history.Turn{
			ID:         t.ID,
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
			CreatedAt:  t.CreatedAt,
		})
	}

	logger.Info("Session %s loaded with %d turns", sess.ID, sess.History.Len())
	return sess, nil
}

// List returns the ids of all persisted sessions, newest first.
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	type candidate struct {
		id      string
		modTime time.Time
	}
	var found []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".session") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			id:      strings.TrimSuffix(name, ".session"),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].modTime.After(found[j].modTime)
	})

	ids := make([]string, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.id)
	}
	return ids, nil
}

// Delete removes a persisted session.
func (s *Storage) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *Storage) path(id string) string {
	return filepath.Join(s.dir, id+".session")
}
