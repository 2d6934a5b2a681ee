package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")

	s := newTestStore()
	id, err := s.Establish("", "How are packages linked?")
	require.NoError(t, err)
	answer := chat.NewAssistantTurn("Through imports").
		WithThoughts([]chat.Thought{{Kind: chat.ThoughtTool, Text: "🔧 grep", ToolName: "grep"}})
	require.NoError(t, s.SaveTranscript(id, chat.NewTranscript(chat.NewUserTurn("How are packages linked?"), answer)))
	archived := s.Create()
	require.NoError(t, s.Archive(archived.ID, true))

	require.NoError(t, s.Save(path))

	loaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, s.List(), loaded.List())

	tr, err := loaded.Transcript(id)
	require.NoError(t, err)
	require.Equal(t, 2, tr.Len())
	last, _ := tr.LastAssistantTurn()
	assert.Equal(t, "Through imports", last.Content)
	require.Len(t, last.Thoughts, 1)
	assert.Equal(t, "grep", last.Thoughts[0].ToolName)

	assert.Len(t, loaded.Archived(), 1)
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestOpenFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	s := newTestStore()
	first := s.Create()
	require.NoError(t, s.Save(path))
	s.Create()
	require.NoError(t, s.Save(path))

	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))

	loaded, err := Open(path)
	require.NoError(t, err)
	sessions := loaded.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, first.ID, sessions[0].ID)
}

func TestOpenCorruptWithoutBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := Open(path)
	assert.Error(t, err)
}
