package ws

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	diag "github.com/coreman2200/funtimes-ledwall/internal/diagnostics"
	"github.com/coreman2200/funtimes-ledwall/internal/emu"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/render"
)

var geom = panel.Geometry{RowModules: 1, ColModules: 1, ColorBits: 8}

type countingWall struct {
	*render.Loop
	stops atomic.Int32
}

func (w *countingWall) StopOutput() {
	w.stops.Add(1)
	w.Loop.StopOutput()
}

func newServer(t *testing.T) (*State, *countingWall, *httptest.Server) {
	l, err := render.New(geom, bcm.DefaultDelayTable())
	require.NoError(t, err)
	wall := &countingWall{Loop: l}
	s := NewState(wall, "sim")
	srv := httptest.NewServer(s.Mux())
	t.Cleanup(srv.Close)
	return s, wall, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func clientCount(s *State, set map[*client]bool) func() bool {
	return func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(set) > 0
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	require.NoError(t, json.Unmarshal(b, v))
}

func getHealth(t *testing.T, srv *httptest.Server, query string) health {
	resp, err := http.Get(srv.URL + "/health" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	var h health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	return h
}

func TestHealthAndPostFrame(t *testing.T) {
	_, _, srv := newServer(t)

	h := getHealth(t, srv, "")
	assert.False(t, h.Ready)
	assert.Equal(t, 20, h.Rows)
	assert.Equal(t, 20, h.Cols)
	assert.Equal(t, "sim", h.Driver)

	frame := bytes.Repeat([]byte{7}, geom.FrameSize())
	resp, err := http.Post(srv.URL+"/frame", "application/octet-stream", bytes.NewReader(frame))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	h = getHealth(t, srv, "?frame=1")
	assert.True(t, h.Ready)
	assert.Equal(t, uint64(1), h.Frames)
	assert.Equal(t, frame, h.Frame)
	assert.Nil(t, getHealth(t, srv, "").Frame)
}

func TestPostFrameWrongSize(t *testing.T) {
	s, _, srv := newServer(t)
	dc := dial(t, srv, "/diag")
	require.Eventually(t, clientCount(s, s.diagClients), time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/frame", "application/octet-stream", bytes.NewReader(make([]byte, 3)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var d diag.Diagnostic
	readJSON(t, dc, &d)
	assert.Equal(t, diag.FrameRejected, d.Code)
	assert.Equal(t, float64(3), d.Evidence["got_bytes"])

	resp, err = http.Get(srv.URL + "/frame")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBlank(t *testing.T) {
	s, wall, srv := newServer(t)
	dc := dial(t, srv, "/diag")
	require.Eventually(t, clientCount(s, s.diagClients), time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/blank", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(1), wall.stops.Load())

	var d diag.Diagnostic
	readJSON(t, dc, &d)
	assert.Equal(t, diag.OutputBlanked, d.Code)
}

func TestFramesOverWebsocket(t *testing.T) {
	s, wall, srv := newServer(t)
	conn := dial(t, srv, "/ws")

	var top map[string]any
	readJSON(t, conn, &top)
	assert.Equal(t, float64(20), top["rows"])
	assert.Equal(t, float64(8), top["color_bits"])

	frame := bytes.Repeat([]byte{42}, geom.FrameSize())
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	require.Eventually(t, func() bool { return bytes.Equal(wall.Frame(), frame) }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	var e map[string]string
	readJSON(t, conn, &e)
	assert.Contains(t, e["error"], "frame size")

	// snapshots go to frames clients once an emulator is attached
	s.BroadcastSnapshot()
	s.Emu = emu.New(geom)
	s.BroadcastSnapshot()
	var snap struct {
		SnapID uint64 `json:"snap_id"`
		W, H   int
		Gray   []byte
	}
	readJSON(t, conn, &snap)
	assert.Equal(t, uint64(1), snap.SnapID)
	assert.Equal(t, 20, snap.W)
	assert.Equal(t, 20, snap.H)
	assert.Len(t, snap.Gray, geom.FrameSize())
}
