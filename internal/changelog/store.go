package changelog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/storage"
)

// Store owns the in-memory changelog and its persistence. All mutation goes
// through the single active flow in practice, but the mutex keeps the HTTP
// and watcher paths safe when both reach the store.
type Store struct {
	provider  storage.Provider
	logger    *slog.Logger
	retention int

	mu     sync.Mutex
	log    Log
	active *Session
}

// NewStore creates a Store persisting through provider. retention <= 0
// selects DefaultRetention.
func NewStore(provider storage.Provider, logger *slog.Logger, retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		provider:  provider,
		logger:    logger,
		retention: retention,
		log:       Log{Version: storageVersion},
	}
}

// Load reads the persisted changelog. A missing or corrupt file yields an
// empty log, never an error: history is an amenity, not a startup gate.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.provider.Read(StoragePath)
	if err != nil {
		s.log = Log{Version: storageVersion}
		return
	}
	var loaded Log
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("changelog: corrupt storage, starting empty", slog.String("error", err.Error()))
		s.log = Log{Version: storageVersion}
		return
	}
	loaded.Version = storageVersion
	s.log = loaded
}

// StartSession opens a new session. Any previously open session is ended
// first so changes are never orphaned.
func (s *Store) StartSession(label string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.endSessionLocked()
	}
	s.active = &Session{
		ID:        uuid.NewString(),
		Label:     label,
		StartTime: time.Now(),
	}
	return s.active
}

// RecordBefore captures a note's pre-state in the active session and returns
// the pending change entry. The type and description are placeholders until
// RecordAfter runs; the patch outcome is only known then.
func (s *Store) RecordBefore(path, content string) *Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		s.active = &Session{ID: uuid.NewString(), StartTime: time.Now()}
	}
	before := content
	c := &Change{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      TypeContentModified,
		Path:      path,
		Before:    &before,
	}
	s.active.Changes = append(s.active.Changes, c)
	return c
}

// RecordAfter completes a pending change with the patch outcome.
func (s *Store) RecordAfter(c *Change, typ ChangeType, description, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	after := content
	c.Type = typ
	c.Description = description
	c.After = &after
}

// DiscardChange removes a pending change from the active session, used when
// a patch turned out to be a no-op and there is nothing to track.
func (s *Store) DiscardChange(c *Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return
	}
	for i, entry := range s.active.Changes {
		if entry.ID == c.ID {
			s.active.Changes = append(s.active.Changes[:i], s.active.Changes[i+1:]...)
			return
		}
	}
}

// SessionActive reports whether a session is currently open.
func (s *Store) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// EndSession closes the active session. Sessions with zero changes are
// dropped, never persisted.
func (s *Store) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSessionLocked()
}

func (s *Store) endSessionLocked() {
	if s.active == nil {
		return
	}
	session := s.active
	s.active = nil

	if len(session.Changes) == 0 {
		return
	}
	now := time.Now()
	session.EndTime = &now
	s.log.Sessions = append(s.log.Sessions, session)

	// Oldest sessions beyond the retention bound are discarded.
	if excess := len(s.log.Sessions) - s.retention; excess > 0 {
		s.log.Sessions = s.log.Sessions[excess:]
	}

	s.persistLocked()
}

// RollbackChange restores the note touched by the given change to its
// recorded pre-state, removes the entry from its session, and drops the
// session if it became empty. The rollback itself is not recorded: undoing
// an undo would chain forever.
func (s *Store) RollbackChange(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, change := s.findChangeLocked(id)
	if change == nil {
		return apperr.ErrChangeNotFound
	}
	if !change.Rollbackable() {
		return apperr.ErrNotRollbackable
	}
	if !s.provider.Exists(change.Path) {
		return fmt.Errorf("changelog: rollback %s: %w", change.Path, apperr.ErrNotFound)
	}
	if err := s.provider.Write(change.Path, []byte(*change.Before)); err != nil {
		return fmt.Errorf("changelog: rollback write: %w", err)
	}

	s.removeChangeLocked(session, change.ID)
	s.persistLocked()
	return nil
}

// RollbackSession restores every rollback-able change of the session in
// reverse chronological order, removes the session regardless of partial
// success, and returns the number of notes actually restored. Entries
// without a pre-state snapshot, or whose note has been deleted since, are
// skipped.
func (s *Store) RollbackSession(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, session := range s.log.Sessions {
		if session.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, apperr.ErrSessionNotFound
	}
	session := s.log.Sessions[idx]

	restored := 0
	for i := len(session.Changes) - 1; i >= 0; i-- {
		c := session.Changes[i]
		if !c.Rollbackable() {
			continue
		}
		if !s.provider.Exists(c.Path) {
			s.logger.Warn("changelog: rollback target missing, skipped", slog.String("path", c.Path))
			continue
		}
		if err := s.provider.Write(c.Path, []byte(*c.Before)); err != nil {
			s.logger.Warn("changelog: rollback write failed",
				slog.String("path", c.Path), slog.String("error", err.Error()))
			continue
		}
		restored++
	}

	s.log.Sessions = append(s.log.Sessions[:idx], s.log.Sessions[idx+1:]...)
	s.persistLocked()
	return restored, nil
}

// Sessions returns the persisted sessions, most recent last, up to limit
// (0 means all).
func (s *Store) Sessions(limit int) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.log.Sessions
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[len(sessions)-limit:]
	}
	out := make([]*Session, len(sessions))
	copy(out, sessions)
	return out
}

// Change returns the change with the given id, or nil.
func (s *Store) Change(id string) *Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c := s.findChangeLocked(id)
	return c
}

func (s *Store) findChangeLocked(id string) (*Session, *Change) {
	for _, session := range s.log.Sessions {
		for _, c := range session.Changes {
			if c.ID == id {
				return session, c
			}
		}
	}
	if s.active != nil {
		for _, c := range s.active.Changes {
			if c.ID == id {
				return s.active, c
			}
		}
	}
	return nil, nil
}

func (s *Store) removeChangeLocked(session *Session, changeID string) {
	for i, c := range session.Changes {
		if c.ID == changeID {
			session.Changes = append(session.Changes[:i], session.Changes[i+1:]...)
			break
		}
	}
	if len(session.Changes) == 0 && session != s.active {
		for i, sess := range s.log.Sessions {
			if sess.ID == session.ID {
				s.log.Sessions = append(s.log.Sessions[:i], s.log.Sessions[i+1:]...)
				break
			}
		}
	}
}

// persistLocked rewrites the whole log. Persistence failures are logged and
// swallowed: durability of the note content always outranks durability of
// the history record.
func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(s.log, "", "  ")
	if err != nil {
		s.logger.Error("changelog: marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.provider.Write(StoragePath, data); err != nil {
		s.logger.Error("changelog: persist failed", slog.String("error", err.Error()))
	}
}
