package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mufancom/remote-workspace/internal/workspace"
)

func testRecord(id, name string) workspace.Record {
	return workspace.Record{
		ID:          id,
		DisplayName: name,
		Owner:       "alice",
		Port:        2222,
		Active:      true,
		Projects: []workspace.Project{
			{
				Name: "app",
				Git: workspace.ProjectGit{
					URL:    "git@github.com:example/app.git",
					Branch: "main",
				},
			},
		},
	}
}

func TestOpenMissingFileCreatesEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.List())

	// Opening must not create the file; only mutations flush.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestPushPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))
	require.NoError(t, s.Push(testRecord("ws-2", "second")))

	reopened, err := Open(path)
	require.NoError(t, err)

	records := reopened.List()
	require.Len(t, records, 2)
	assert.Equal(t, "ws-1", records[0].ID)
	assert.Equal(t, "second", records[1].DisplayName)
	assert.Equal(t, "git@github.com:example/app.git", records[0].Projects[0].Git.URL)
}

func TestGet(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "workspaces.json"))
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))

	record, ok := s.Get("ws-1")
	require.True(t, ok)
	assert.Equal(t, "first", record.DisplayName)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestPullWhereRemovesMatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))
	require.NoError(t, s.Push(testRecord("ws-2", "second")))

	removed, err := s.PullWhere(func(r workspace.Record) bool { return r.ID == "ws-1" })
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "ws-1", removed[0].ID)

	records := s.List()
	require.Len(t, records, 1)
	assert.Equal(t, "ws-2", records[0].ID)

	// The removal survives a reopen.
	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)
}

func TestPullWhereNoMatchReturnsNil(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "workspaces.json"))
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))

	removed, err := s.PullWhere(func(r workspace.Record) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Len(t, s.List(), 1)
}

func TestUpdateMutatesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))

	found, err := s.Update("ws-1", func(r *workspace.Record) {
		r.Active = false
	})
	require.NoError(t, err)
	assert.True(t, found)

	record, ok := s.Get("ws-1")
	require.True(t, ok)
	assert.False(t, record.Active)

	found, err = s.Update("missing", func(r *workspace.Record) {})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListReturnsCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "workspaces.json"))
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))

	records := s.List()
	records[0].DisplayName = "tampered"

	record, ok := s.Get("ws-1")
	require.True(t, ok)
	assert.Equal(t, "first", record.DisplayName)
}

func TestEmptyStoreFlushesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Push(testRecord("ws-1", "first")))

	_, err = s.PullWhere(func(r workspace.Record) bool { return true })
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"workspaces": []`)
}
