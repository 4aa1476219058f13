package ws

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	diag "github.com/coreman2200/funtimes-ledwall/internal/diagnostics"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/render"
)

const writeWait = 200 * time.Millisecond

// Wall is the part of the render loop the server drives.
type Wall interface {
	Geometry() panel.Geometry
	SetFrame(frame []byte) error
	Frame() []byte
	Stats() render.Stats
	StopOutput()
}

// Snapshotter yields what the wall currently shows.
type Snapshotter interface {
	Snapshot() *image.Gray
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(kind int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, b)
}

type State struct {
	mu   sync.RWMutex
	Wall Wall
	Emu  Snapshotter // optional, set for the simulator
	Log  zerolog.Logger

	CurrentDriver string

	startTime   time.Time
	snapID      uint64
	clients     map[*client]bool
	diagClients map[*client]bool
	upgrader    websocket.Upgrader
}

func NewState(w Wall, driver string) *State {
	return &State{
		Wall:          w,
		Log:           zerolog.Nop(),
		CurrentDriver: driver,
		startTime:     time.Now(),
		clients:       map[*client]bool{},
		diagClients:   map[*client]bool{},
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Mux routes every endpoint.
func (s *State) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/frame", s.HandleFrame)
	mux.HandleFunc("/blank", s.HandleBlank)
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	return mux
}

func (s *State) register(set map[*client]bool, conn *websocket.Conn) *client {
	c := &client{conn: conn}
	s.mu.Lock()
	set[c] = true
	s.mu.Unlock()
	return c
}

func (s *State) unregister(set map[*client]bool, c *client) {
	s.mu.Lock()
	delete(set, c)
	s.mu.Unlock()
	c.conn.Close()
}

// setFrame applies a frame and reports rejections to diagnostics clients.
func (s *State) setFrame(frame []byte) error {
	err := s.Wall.SetFrame(frame)
	if err != nil {
		s.pushDiag(diag.Rejected(err, len(frame), s.Wall.Geometry().FrameSize()))
	}
	return err
}

// HandleFramesWS takes binary messages as raw frames and streams emulator
// snapshots back.
func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := s.register(s.clients, conn)
	s.sendTopology(c)

	go func() {
		defer s.unregister(s.clients, c)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			if err := s.setFrame(data); err != nil {
				b, _ := json.Marshal(map[string]string{"error": err.Error()})
				_ = c.write(websocket.TextMessage, b)
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := s.register(s.diagClients, conn)
	go func() {
		defer s.unregister(s.diagClients, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleFrame accepts one raw frame as the request body.
func (s *State) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST a raw frame", http.StatusMethodNotAllowed)
		return
	}
	limit := int64(s.Wall.Geometry().FrameSize()) + 1
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.setFrame(body); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, bcm.ErrFrameSize) {
			code = http.StatusBadRequest
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *State) HandleBlank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST to blank the wall", http.StatusMethodNotAllowed)
		return
	}
	s.Wall.StopOutput()
	s.Log.Info().Str("remote", r.RemoteAddr).Msg("output blanked")
	s.pushDiag(diag.New(diag.Info, diag.OutputBlanked, "Output stopped"))
	w.WriteHeader(http.StatusNoContent)
}

type health struct {
	render.Stats
	UptimeS   float64 `json:"uptime_s"`
	Driver    string  `json:"driver"`
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	ColorBits int     `json:"color_bits"`
	Frame     []byte  `json:"frame,omitempty"`
}

// HandleHealth reports render state; ?frame=1 adds the retained raw frame.
func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	g := s.Wall.Geometry()
	resp := health{
		Stats:     s.Wall.Stats(),
		UptimeS:   time.Since(s.startTime).Seconds(),
		Driver:    s.CurrentDriver,
		Rows:      g.Rows(),
		Cols:      g.Cols(),
		ColorBits: g.ColorBits,
	}
	if r.URL.Query().Get("frame") == "1" {
		resp.Frame = s.Wall.Frame()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) sendTopology(c *client) {
	g := s.Wall.Geometry()
	top := map[string]any{
		"rows":        g.Rows(),
		"cols":        g.Cols(),
		"row_modules": g.RowModules,
		"col_modules": g.ColModules,
		"color_bits":  g.ColorBits,
		"driver":      s.CurrentDriver,
	}
	b, _ := json.Marshal(top)
	_ = c.write(websocket.TextMessage, b)
}

// BroadcastSnapshot sends the emulator's current picture to every frames
// client. It does nothing without an emulator.
func (s *State) BroadcastSnapshot() {
	if s.Emu == nil {
		return
	}
	img := s.Emu.Snapshot()

	s.mu.Lock()
	s.snapID++
	id := s.snapID
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	type snapshot struct {
		T      int64  `json:"t"`
		SnapID uint64 `json:"snap_id"`
		W      int    `json:"w"`
		H      int    `json:"h"`
		Gray   []byte `json:"gray"`
	}
	b, _ := json.Marshal(snapshot{
		T:      time.Now().UnixNano(),
		SnapID: id,
		W:      img.Rect.Dx(),
		H:      img.Rect.Dy(),
		Gray:   img.Pix,
	})
	for _, c := range targets {
		if err := c.write(websocket.TextMessage, b); err != nil {
			s.Log.Debug().Err(err).Msg("write snapshot")
		}
	}
}

// RunSnapshotLoop broadcasts at fps until stop is closed.
func (s *State) RunSnapshotLoop(fps int, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, fps)))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.BroadcastSnapshot()
		}
	}
}

// PushDiag forwards d to diagnostics clients.
func (s *State) PushDiag(d diag.Diagnostic) { s.pushDiag(d) }

func (s *State) pushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.mu.RLock()
	targets := make([]*client, 0, len(s.diagClients))
	for c := range s.diagClients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	for _, c := range targets {
		_ = c.write(websocket.TextMessage, b)
	}
}
