// Package ws serves the live slice viewer over websockets. Clients send JSON
// commands and receive the viewer state as JSON followed by the rendered
// slice as a PNG binary message after every change.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"brainviewer/internal/models"
	"brainviewer/pkg/canvas"
	"brainviewer/pkg/measure"
	"brainviewer/pkg/orbit"
	"brainviewer/pkg/session"
)

const (
	writeTimeout   = time.Second
	commandTimeout = 30 * time.Second
)

// Hub owns a viewing session and fans its frames out to every connected client
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	// renderMu serializes the renderer, which is not safe for concurrent use
	renderMu sync.Mutex
	renderer *canvas.Renderer

	sess     *session.Session
	orbit    *orbit.Bus
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates a hub around a session and renderer
func NewHub(sess *session.Session, renderer *canvas.Renderer, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  map[*websocket.Conn]bool{},
		renderer: renderer,
		sess:     sess,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      logger.With().Str("component", "ws").Logger(),
	}
}

// SetOrbit routes orbit commands to bus, which drives the 3D view camera
func (h *Hub) SetOrbit(bus *orbit.Bus) {
	h.orbit = bus
}

// Register mounts the hub handlers on mux
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWS)
	mux.HandleFunc("/frame.png", h.HandleFrame)
	mux.HandleFunc("/measurements", h.HandleMeasurements)
	mux.HandleFunc("/health", h.HandleHealth)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the connection, sends the current state and frame and
// then applies every command the client sends
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	state, frame := h.snapshot()
	h.mu.Lock()
	h.clients[conn] = true
	h.send(conn, state, frame)
	h.mu.Unlock()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
			h.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				h.reply(conn, fmt.Errorf("invalid command: %w", err))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			err = h.Apply(ctx, cmd)
			cancel()
			if err != nil {
				h.reply(conn, err)
				continue
			}
			if cmd.Type == "orbit" {
				// the slice view is unchanged
				continue
			}
			h.Broadcast()
		}
	}()
}

// HandleFrame writes the current frame as PNG
func (h *Hub) HandleFrame(w http.ResponseWriter, r *http.Request) {
	_, frame := h.snapshot()
	if frame == nil {
		http.Error(w, "no slice loaded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(frame)
}

// HandleMeasurements exports the measurement list as JSON, or CSV with
// ?format=csv
func (h *Hub) HandleMeasurements(w http.ResponseWriter, r *http.Request) {
	list := h.sess.List()
	var err error
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="measurements.csv"`)
		err = list.WriteCSV(w)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = list.WriteJSON(w)
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("measurement export failed")
	}
}

// HandleHealth reports the hub state
func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	idx, count := h.sess.Position(h.sess.Axis())
	resp := map[string]any{
		"clients":      h.Clients(),
		"axis":         h.sess.Axis().String(),
		"index":        idx,
		"count":        count,
		"measurements": h.sess.List().Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Broadcast sends the current state and frame to every client
func (h *Hub) Broadcast() {
	state, frame := h.snapshot()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.send(c, state, frame)
	}
}

// send writes one state message and, when there is a slice, one frame.
// Called with mu held.
func (h *Hub) send(c *websocket.Conn, state []byte, frame []byte) {
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.WriteMessage(websocket.TextMessage, state); err != nil {
		h.log.Debug().Err(err).Msg("write state")
		return
	}
	if frame == nil {
		return
	}
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		h.log.Debug().Err(err).Msg("write frame")
	}
}

func (h *Hub) reply(c *websocket.Conn, err error) {
	b, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})
	h.mu.Lock()
	defer h.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.WriteMessage(websocket.TextMessage, b)
}

// snapshot encodes the viewer state and renders the current frame. frame is
// nil when nothing can be drawn.
func (h *Hub) snapshot() (state []byte, frame []byte) {
	f := h.sess.Frame()

	h.renderMu.Lock()
	img, err := h.renderer.Render(f)
	h.renderMu.Unlock()

	if err == nil {
		var buf bytes.Buffer
		if err := canvas.EncodePNG(&buf, img); err != nil {
			h.log.Error().Err(err).Msg("frame encoding failed")
		} else {
			frame = buf.Bytes()
		}
	} else if !errors.Is(err, canvas.ErrNoSlice) {
		h.log.Warn().Err(err).Msg("frame render failed")
	}

	state, _ = json.Marshal(h.state(f))
	return state, frame
}

// State is the JSON message describing the viewer
type State struct {
	Type         string               `json:"type"`
	Axis         models.Axis          `json:"axis"`
	Index        int                  `json:"index"`
	Count        int                  `json:"count"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	Tool         string               `json:"tool"`
	Display      Display              `json:"display"`
	Grid         bool                 `json:"grid"`
	Crosshair    bool                 `json:"crosshair"`
	Status       map[string]string    `json:"status,omitempty"`
	Measurements []models.Measurement `json:"measurements"`
}

// Display is the JSON form of the display settings
type Display struct {
	Level      float64 `json:"level"`
	Width      float64 `json:"width"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
	Colormap   string  `json:"colormap"`
}

func (h *Hub) state(f canvas.Frame) State {
	axis := h.sess.Axis()
	idx, count := h.sess.Position(axis)
	st := State{
		Type:         "state",
		Axis:         axis,
		Index:        idx,
		Count:        count,
		Tool:         h.sess.Tool().String(),
		Grid:         f.ShowGrid,
		Crosshair:    f.ShowCrosshair,
		Measurements: h.sess.Measurements(),
		Display: Display{
			Level:      f.Display.Level,
			Width:      f.Display.Width,
			Contrast:   f.Display.Contrast,
			Brightness: f.Display.Brightness,
			Colormap:   f.Display.Colormap.String(),
		},
	}
	if f.Slice != nil {
		st.Width, st.Height = f.Slice.Width, f.Slice.Height
	}
	if st.Measurements == nil {
		st.Measurements = []models.Measurement{}
	}
	for _, role := range models.Roles {
		if msg := h.sess.Status(role); msg != "" {
			if st.Status == nil {
				st.Status = map[string]string{}
			}
			st.Status[role.String()] = msg
		}
	}
	return st
}

// Command is a client request
type Command struct {
	// Type is one of axis, index, step, tool, pointer, display, grid,
	// crosshair, clear, dismiss, refresh, orbit
	Type string `json:"type"`

	Axis  string `json:"axis,omitempty"`
	Value string `json:"value,omitempty"`
	Delta int    `json:"delta,omitempty"`
	Tool  string `json:"tool,omitempty"`
	On    bool   `json:"on,omitempty"`
	Role  string `json:"role,omitempty"`

	Pointer *Pointer       `json:"pointer,omitempty"`
	Display *DisplayChange `json:"display,omitempty"`
	Orbit   *OrbitInput    `json:"orbit,omitempty"`
}

// OrbitInput is a pointer or wheel event on the 3D view, in canvas pixels
type OrbitInput struct {
	// Kind is down, move, up or wheel
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	// Button is left, middle or right; empty means left
	Button string  `json:"button,omitempty"`
	Shift  bool    `json:"shift,omitempty"`
	Delta  float64 `json:"delta,omitempty"`
}

// Pointer is a canvas event in client coordinates
type Pointer struct {
	// Kind is down, move, up, click or dblclick
	Kind    string      `json:"kind"`
	ClientX float64     `json:"clientX"`
	ClientY float64     `json:"clientY"`
	Rect    canvas.Rect `json:"rect"`
}

// DisplayChange updates the fields that are set
type DisplayChange struct {
	Level      *float64 `json:"level,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Colormap   *string  `json:"colormap,omitempty"`
}

// Apply executes one command against the session. Fetch failures are kept
// as session status and do not fail the command.
func (h *Hub) Apply(ctx context.Context, cmd Command) error {
	s := h.sess
	switch cmd.Type {
	case "axis":
		axis, err := models.ParseAxis(cmd.Axis)
		if err != nil {
			return err
		}
		s.SetAxis(ctx, axis)
	case "index":
		_, err := s.SetIndexText(ctx, cmd.Value)
		return err
	case "step":
		_, err := s.Step(ctx, cmd.Delta)
		return err
	case "refresh":
		s.Refresh(ctx)
	case "tool":
		k, err := measure.ParseToolKind(cmd.Tool)
		if err != nil {
			return err
		}
		s.SetTool(k)
	case "pointer":
		return h.applyPointer(cmd.Pointer)
	case "display":
		return h.applyDisplay(cmd.Display)
	case "grid":
		s.SetGrid(cmd.On)
	case "crosshair":
		s.SetCrosshair(cmd.On)
	case "clear":
		s.ClearMeasurements()
	case "orbit":
		return h.applyOrbit(cmd.Orbit)
	case "dismiss":
		role, err := models.ParseFileRole(cmd.Role)
		if err != nil {
			return err
		}
		s.Dismiss(role)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return nil
}

func (h *Hub) applyPointer(p *Pointer) error {
	if p == nil {
		return errors.New("pointer command without pointer")
	}
	slice := h.sess.Slice(models.Brain)
	if slice == nil {
		slice = h.sess.Slice(models.Lesion)
	}
	if slice == nil {
		return session.ErrNoVolume
	}
	pt, ok := canvas.PointerToPixel(p.ClientX, p.ClientY, p.Rect, slice.Width, slice.Height)
	if !ok {
		return nil
	}

	s := h.sess
	switch p.Kind {
	case "down":
		s.PointerDown(pt)
	case "move":
		s.PointerMove(pt)
	case "up":
		s.PointerUp(pt)
	case "click":
		s.Click(pt)
	case "dblclick":
		s.DoubleClick(pt)
	default:
		return fmt.Errorf("unknown pointer kind %q", p.Kind)
	}
	return nil
}

func (h *Hub) applyOrbit(in *OrbitInput) error {
	if in == nil {
		return errors.New("orbit command without event")
	}
	if h.orbit == nil {
		return errors.New("3D view not available")
	}
	e := orbit.Event{X: in.X, Y: in.Y, Shift: in.Shift, Delta: in.Delta}
	switch in.Kind {
	case "down":
		e.Kind = orbit.PointerDown
	case "move":
		e.Kind = orbit.PointerMove
	case "up":
		e.Kind = orbit.PointerUp
	case "wheel":
		e.Kind = orbit.Wheel
	default:
		return fmt.Errorf("unknown orbit kind %q", in.Kind)
	}
	switch in.Button {
	case "", "left":
		e.Button = orbit.LeftButton
	case "middle":
		e.Button = orbit.MiddleButton
	case "right":
		e.Button = orbit.RightButton
	default:
		return fmt.Errorf("unknown button %q", in.Button)
	}
	h.orbit.Publish(e)
	return nil
}

func (h *Hub) applyDisplay(c *DisplayChange) error {
	if c == nil {
		return errors.New("display command without settings")
	}
	d := h.sess.Display()
	if c.Level != nil {
		d.Level = *c.Level
	}
	if c.Width != nil {
		d.Width = *c.Width
	}
	if c.Contrast != nil {
		if *c.Contrast <= 0 {
			return fmt.Errorf("contrast must be positive, got %s", strconv.FormatFloat(*c.Contrast, 'g', -1, 64))
		}
		d.Contrast = *c.Contrast
	}
	if c.Brightness != nil {
		d.Brightness = *c.Brightness
	}
	if c.Colormap != nil {
		cmap, err := models.ParseColormap(*c.Colormap)
		if err != nil {
			return err
		}
		d.Colormap = cmap
	}
	h.sess.SetDisplay(d)
	return nil
}
