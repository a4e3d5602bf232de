package wschat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureAndSave(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello chat"))
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx, "room1"))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Stop())

	path := filepath.Join(t.TempDir(), "segment.xml")
	wrote, err := c.Save(path)
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello chat")
}

func TestSaveWithNoEntriesReturnsFalse(t *testing.T) {
	c := New("", nil)
	wrote, err := c.Save(filepath.Join(t.TempDir(), "segment.xml"))
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestEmptyEndpointStartIsNoop(t *testing.T) {
	c := New("", nil)
	require.NoError(t, c.Start(context.Background(), "room"))
}
