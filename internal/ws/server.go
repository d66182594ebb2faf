// Package ws serves the live frame preview, the control channel, the
// diagnostic stream and a health endpoint.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	diag "github.com/coreman2200/fpga-matrixpanel/internal/diagnostics"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
)

const writeWait = 200 * time.Millisecond

// Server is safe for concurrent use.
type Server struct {
	reg *entity.Registry
	hub *diag.Hub

	// ConfigPath, when set, receives the config after every control change.
	ConfigPath string
	Config     *config.Config

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	// writeMu serialises frame writes; gorilla allows one writer per conn.
	writeMu sync.Mutex
	cfgMu   sync.Mutex

	startTime time.Time
	up        websocket.Upgrader
}

func New(reg *entity.Registry, hub *diag.Hub) *Server {
	return &Server{
		reg:       reg,
		hub:       hub,
		clients:   map[*websocket.Conn]bool{},
		startTime: time.Now(),
		up:        websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Handler routes /ws, /control, /diag and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info().Str("addr", addr).Msg("web listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type frame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	Display string `json:"display"`
	W       int    `json:"w"`
	H       int    `json:"h"`
	RGB     []byte `json:"rgb"`
}

// RunPreview broadcasts a snapshot of every display each period until ctx
// is done.
func (s *Server) RunPreview(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.BroadcastFrames()
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BroadcastFrames sends one snapshot per display to every preview client.
func (s *Server) BroadcastFrames() {
	if s.clientCount() == 0 {
		return
	}
	for _, d := range s.reg.Displays() {
		f := d.Snapshot()
		b, _ := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: f.ID, Display: f.Display, W: f.W, H: f.H, RGB: f.RGB})
		s.broadcast(b)
	}
}

func (s *Server) broadcast(b []byte) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (s *Server) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	out := make(chan diag.Diagnostic, 16)
	cancel := s.hub.Subscribe(func(d diag.Diagnostic) {
		select {
		case out <- d:
		default:
		}
	})
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() {
			cancel()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case d := <-out:
				b, _ := json.Marshal(d)
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}()
}

// Control is one message on the control channel.
type Control struct {
	Display    string            `json:"display"`
	Brightness *int              `json:"brightness,omitempty"`
	Power      *bool             `json:"power,omitempty"`
	Writer     string            `json:"writer,omitempty"`
	Preset     string            `json:"preset,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// HandleControlWS applies each control message and answers with the
// display status.
func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Control
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.Push(diag.Diagnostic{Severity: diag.Warn, Code: "CONTROL.INVALID", Summary: "Invalid control message", Detail: err.Error()})
			continue
		}
		st, ok := s.ApplyControl(msg)
		if !ok {
			continue
		}
		b, _ := json.Marshal(st)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// ApplyControl changes a display and persists the result. It reports false
// when the message names no known display.
func (s *Server) ApplyControl(msg Control) (display.Status, bool) {
	d, err := s.reg.Display(msg.Display)
	if err != nil {
		s.hub.Push(diag.Diagnostic{
			Severity: diag.Warn, Code: "CONTROL.UNKNOWN_DISPLAY", Summary: "Unknown display",
			Evidence: map[string]any{"display": msg.Display},
		})
		return display.Status{}, false
	}
	if msg.Brightness != nil {
		s.setBrightness(d, *msg.Brightness)
	}
	if msg.Power != nil {
		s.setPower(d, *msg.Power)
	}
	if msg.Writer != "" {
		ref := config.WriterRef{Name: msg.Writer, Preset: msg.Preset, Params: msg.Params}
		if wr, err := writers.New(ref); err != nil {
			s.hub.Push(diag.Diagnostic{
				Severity: diag.Warn, Code: "CONTROL.UNKNOWN_WRITER", Summary: "Writer rejected",
				Display: d.ID(), Detail: err.Error(),
			})
		} else {
			d.SetWriter(wr)
			s.persist(d.ID(), func(c *config.Display) { c.Writer = &ref })
		}
	}
	return d.Status(), true
}

// setBrightness goes through a number entity when one is bound so that
// subscribers see the change.
func (s *Server) setBrightness(d *display.Display, v int) {
	var err error
	handled := false
	for _, n := range s.reg.Numbers() {
		if n.Display() == d {
			err = n.Control(float64(v))
			handled = true
			break
		}
	}
	if !handled {
		err = d.SetBrightness(v)
	}
	if err != nil {
		log.Error().Err(err).Str("display", d.ID()).Msg("brightness")
		return
	}
	b := d.Brightness()
	s.persist(d.ID(), func(c *config.Display) { c.Brightness = &b })
}

func (s *Server) setPower(d *display.Display, on bool) {
	for _, sw := range s.reg.Switches() {
		if sw.Display() == d {
			sw.WriteState(on)
			return
		}
	}
	d.SetState(on)
}

func (s *Server) persist(id string, f func(*config.Display)) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if s.Config == nil {
		return
	}
	c, ok := s.Config.Display(id)
	if !ok {
		return
	}
	f(c)
	if s.ConfigPath == "" {
		return
	}
	if err := config.Save(s.ConfigPath, s.Config); err != nil {
		log.Error().Err(err).Str("path", s.ConfigPath).Msg("save config")
	}
}

type health struct {
	UptimeS  float64          `json:"uptime_s"`
	Healthy  bool             `json:"healthy"`
	Displays []display.Status `json:"displays"`
	Entities []entity.State   `json:"entities"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{UptimeS: time.Since(s.startTime).Seconds(), Healthy: true, Entities: s.reg.States()}
	for _, d := range s.reg.Displays() {
		st := d.Status()
		h.Healthy = h.Healthy && st.Healthy
		h.Displays = append(h.Displays, st)
	}
	w.Header().Set("Content-Type", "application/json")
	if !h.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(h)
}
