package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/logger"
)

const (
	DefaultTitle   = "New chat"
	maxTitleLength = 48
)

var ErrNotFound = errors.New("session not found")

// Session is one conversation listed in the sidebar
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
	Archived  bool      `json:"archived,omitempty"`
}

type entry struct {
	session    Session
	transcript chat.Transcript
}

// Store keeps sessions and their transcripts in memory
type Store struct {
	entries map[string]*entry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create starts a new, untitled session
func (s *Store) Create() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		UpdatedAt: s.now(),
	}
	s.entries[sess.ID] = &entry{session: sess, transcript: chat.NewTranscript()}

	logger.Debug("Created session %s", sess.ID)
	return sess
}

// Adopt registers a session created elsewhere, e.g. one the backend
// already knows. An id already in the store is returned unchanged.
func (s *Store) Adopt(id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		return e.session, nil
	}
	sess := Session{ID: id, Title: DefaultTitle, UpdatedAt: s.now()}
	s.entries[id] = &entry{session: sess, transcript: chat.NewTranscript()}
	return sess, nil
}

// Get returns the session with id
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.session, nil
}

// Establish resolves the identity of a conversation on its first message.
// An unknown or empty id gets a fresh session; a session still carrying the
// default title is named after the message.
func (s *Store) Establish(id, firstMessage string) (string, error) {
	if _, err := s.Get(id); err != nil {
		id = s.Create().ID
	}
	if err := s.EnsureTitled(id, firstMessage); err != nil {
		return "", err
	}
	return id, nil
}

// EnsureTitled names an untitled session after its first message
func (s *Store) EnsureTitled(id, firstMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.session.Title != DefaultTitle {
		return nil
	}
	if title := TitleFrom(firstMessage); title != "" {
		e.session.Title = title
		e.session.UpdatedAt = s.now()
	}
	return nil
}

// Rename sets a session title; blank titles are rejected
func (s *Store) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	return s.update(id, func(e *entry) {
		e.session.Title = title
	})
}

// Archive moves a session in or out of the archive
func (s *Store) Archive(id string, archived bool) error {
	return s.update(id, func(e *entry) {
		e.session.Archived = archived
	})
}

// Delete removes a session and its transcript
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.entries, id)
	logger.Debug("Deleted session %s", id)
	return nil
}

// SaveTranscript stores the latest snapshot of a session's conversation
func (s *Store) SaveTranscript(id string, t chat.Transcript) error {
	return s.update(id, func(e *entry) {
		e.transcript = t
	})
}

// Transcript returns the stored conversation of a session
func (s *Store) Transcript(id string) (chat.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return chat.Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.transcript, nil
}

// List returns all sessions, most recently updated first
func (s *Store) List() []Session {
	return s.filter(func(Session) bool { return true })
}

// Active returns sessions that are not archived
func (s *Store) Active() []Session {
	return s.filter(func(sess Session) bool { return !sess.Archived })
}

// Archived returns archived sessions
func (s *Store) Archived() []Session {
	return s.filter(func(sess Session) bool { return sess.Archived })
}

// Search matches the query against titles and the last message of each
// session, case-insensitively. A blank query matches everything.
func (s *Store) Search(query string) []Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, e := range s.entries {
		last, _ := e.transcript.LastTurn()
		if strings.Contains(strings.ToLower(e.session.Title), q) ||
			strings.Contains(strings.ToLower(last.Content), q) {
			out = append(out, e.session)
		}
	}
	sortByRecency(out)
	return out
}

func (s *Store) filter(keep func(Session) bool) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, e := range s.entries {
		if keep(e.session) {
			out = append(out, e.session)
		}
	}
	sortByRecency(out)
	return out
}

func (s *Store) update(id string, fn func(*entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(e)
	e.session.UpdatedAt = s.now()
	return nil
}

func sortByRecency(sessions []Session) {
	slices.SortFunc(sessions, compareRecency)
}

// compareRecency orders newer sessions first, then by id
func compareRecency(a, b Session) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// TitleFrom derives a sidebar title from a message: whitespace is collapsed
// and long text is cut to maxTitleLength runes with an ellipsis.
func TitleFrom(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength-1])) + "…"
}
