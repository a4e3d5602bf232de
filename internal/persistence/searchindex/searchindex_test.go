package searchindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCreatesAndRoundTripsDocuments(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "recordings.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Index(Document{
		RecordingID: 1,
		StreamerKey: "streamer-a",
		Title:       "Ranked grind part one",
		StartTime:   start,
	}))
	require.NoError(t, idx.Index(Document{
		RecordingID: 2,
		StreamerKey: "streamer-b",
		Title:       "Cooking stream",
		StartTime:   start.Add(time.Hour),
	}))

	results, err := idx.SearchTitle("ranked", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].RecordingID)
	assert.Equal(t, "streamer-a", results[0].StreamerKey)
}

func TestSearchTitleScopedToStreamerKey(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "recordings.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Index(Document{RecordingID: 1, StreamerKey: "streamer-a", Title: "Finale night", StartTime: start}))
	require.NoError(t, idx.Index(Document{RecordingID: 2, StreamerKey: "streamer-b", Title: "Finale night", StartTime: start}))

	results, err := idx.SearchTitle("finale", "streamer-b", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].RecordingID)
}

func TestDeleteRemovesDocument(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "recordings.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(Document{RecordingID: 1, StreamerKey: "streamer-a", Title: "Opening ceremony"}))
	require.NoError(t, idx.Delete(1))

	results, err := idx.SearchTitle("opening", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOpenReopensExistingIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recordings.bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(Document{RecordingID: 1, StreamerKey: "streamer-a", Title: "Persisted title"}))
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.SearchTitle("persisted", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
