package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/config"
	"github.com/killallgit/grapher/pkg/logger"
)

type storedSession struct {
	Session
	Transcript chat.Transcript `json:"transcript"`
}

type storeFile struct {
	Sessions []storedSession `json:"sessions"`
}

// Open loads a store saved with Save. A missing file yields an empty store;
// a corrupt one falls back to the backup written by the previous save.
func Open(path string) (*Store, error) {
	s := NewStore()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		logger.Warn("Sessions file %s is corrupt, trying backup: %v", path, err)
		backup, backupErr := config.ReadBackup(path)
		if backupErr != nil {
			return nil, fmt.Errorf("failed to parse sessions: %w", err)
		}
		sf = storeFile{}
		if err := json.Unmarshal(backup, &sf); err != nil {
			return nil, fmt.Errorf("failed to parse sessions backup: %w", err)
		}
	}

	for _, stored := range sf.Sessions {
		if stored.ID == "" {
			continue
		}
		s.entries[stored.ID] = &entry{session: stored.Session, transcript: stored.Transcript}
	}
	logger.Debug("Loaded %d sessions from %s", len(s.entries), path)
	return s, nil
}

// Save writes every session and transcript to path atomically
func (s *Store) Save(path string) error {
	s.mu.RLock()
	sf := storeFile{Sessions: make([]storedSession, 0, len(s.entries))}
	for _, e := range s.entries {
		sf.Sessions = append(sf.Sessions, storedSession{Session: e.session, Transcript: e.transcript})
	}
	s.mu.RUnlock()

	sortStored(sf.Sessions)

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return config.AtomicWrite(path, data, 0600)
}

func sortStored(stored []storedSession) {
	slices.SortFunc(stored, func(a, b storedSession) int {
		return compareRecency(a.Session, b.Session)
	})
}
