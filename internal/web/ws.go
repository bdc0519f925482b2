package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxFrameSize    = 1 << 12
	defaultInterval = 1 * time.Second
	maxInterval     = 10 * time.Second
)

// Stream message types.
const (
	msgState = "state"
	msgLogs  = "logs"
)

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// wsState is the payload of a "state" message.
type wsState struct {
	State         hazard.State             `json:"state"`
	Sensors       hazard.AggregatedSensors `json:"sensors"`
	MQTTConnected bool                     `json:"mqtt_connected"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream is one websocket subscriber. It pushes state on every tick and
// right after a store change, followed by any console lines it has not
// sent yet.
type stream struct {
	s      *Server
	conn   *websocket.Conn
	cursor console.Cursor
}

func (s *Server) wsConnect(c *gin.Context) {
	interval := s.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Coalesces bursts of store notifications into one push.
	changed := make(chan struct{}, 1)
	cancel := s.deps.Store.Subscribe(func(hazard.Notification) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go drain(conn, closed, s)

	st := &stream{s: s, conn: conn, cursor: console.Start}
	if err := st.push(); err != nil {
		s.log.Infow("ws_initial_write_failed", "err", err)
		return
	}
	s.log.Debugw("ws_connected", "client_ip", c.ClientIP(), "interval", interval)

	tick := time.NewTicker(interval)
	defer tick.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		case <-changed:
			err = st.push()
		case <-tick.C:
			err = st.push()
		}
		if err != nil {
			s.log.Infow("ws_write_failed", "client_ip", c.ClientIP(), "err", err)
			return
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000, bounded to
// maxInterval. Anything else falls back to the configured interval.
func (s *Server) parseInterval(c *gin.Context) time.Duration {
	if v := c.Query("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if v := c.Query("interval_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 && time.Duration(ms)*time.Millisecond <= maxInterval {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return s.opts.WSInterval
}

// drain reads and discards client frames until the connection fails, then
// closes done. Pongs and close frames are handled inside ReadMessage.
func drain(conn *websocket.Conn, done chan<- struct{}, s *Server) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

func (st *stream) push() error {
	deps := st.s.deps
	if err := st.write(wsEnvelope{Type: msgState, Data: wsState{
		State:         deps.Store.State(),
		Sensors:       deps.Store.Aggregate(),
		MQTTConnected: deps.Tracker.Snapshot().MQTTConnected,
	}}); err != nil {
		return err
	}
	if deps.Console == nil {
		return nil
	}
	entries, cur := deps.Console.Next(st.cursor)
	st.cursor = cur
	if len(entries) == 0 {
		return nil
	}
	return st.write(wsEnvelope{Type: msgLogs, Data: entries})
}

func (st *stream) write(msg wsEnvelope) error {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteJSON(msg)
}
