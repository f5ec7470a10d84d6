package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/timectrl"
)

const maxCommandBytes = 4096

// command is a client message on the clock session.
type command struct {
	Cmd   string   `json:"cmd"`
	Speed *float64 `json:"speed,omitempty"`
	Time  string   `json:"time,omitempty"`
	// ID is echoed in the reply so clients can match requests.
	ID string `json:"id,omitempty"`
}

// reply acknowledges or rejects one command.
type reply struct {
	Type  string            `json:"type"` // "ack" or "error"
	ID    string            `json:"id,omitempty"`
	Cmd   string            `json:"cmd,omitempty"`
	Error string            `json:"error,omitempty"`
	Clock timectrl.Snapshot `json:"clock"`
}

var errUnknownCommand = errors.New("unknown command")

// applyCommand mutates clock per cmd.
func applyCommand(clock *timectrl.Controller, cmd command, maxSpeed float64) error {
	switch cmd.Cmd {
	case "play":
		clock.Play()
	case "pause":
		clock.Pause()
	case "toggle":
		clock.Toggle()
	case "speed":
		if cmd.Speed == nil {
			return errors.New("speed requires a speed value")
		}
		s := *cmd.Speed
		if math.IsNaN(s) || math.IsInf(s, 0) || math.Abs(s) > maxSpeed {
			return fmt.Errorf("speed must be within ±%g", maxSpeed)
		}
		clock.SetSpeed(s)
	case "set_time":
		t, err := time.Parse(time.RFC3339, cmd.Time)
		if err != nil {
			return fmt.Errorf("set_time requires an RFC 3339 time: %w", err)
		}
		clock.SetTime(t)
	case "reset":
		clock.Reset()
	case "state":
	default:
		return fmt.Errorf("%q: %w", cmd.Cmd, errUnknownCommand)
	}
	return nil
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// HandleClock runs an interactive clock session over WebSocket. The session
// owns one clock; frames are pushed every step and after each command.
// GET /api/v1/ws/clock?start=&speed=&step=&paused=&include=&sats=&model=
func (h *Handler) HandleClock(w http.ResponseWriter, r *http.Request) {
	if h.scenes == nil {
		writeError(w, http.StatusServiceUnavailable, "clock sessions not configured")
		return
	}
	params, err := h.parseSessionParams(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "clock")
	if !ok {
		return
	}
	defer release()

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.IncStreamErrors("upgrade")
		h.logger.Debug("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	metrics.IncClockSessions()
	defer metrics.DecClockSessions()
	start := time.Now()
	h.logger.Info("clock session opened", "remote_ip", ip, "start", params.start.Format(time.RFC3339), "speed", params.speed)

	clock := params.newClock()

	var frameMu sync.Mutex
	prev := clock.Now()
	sendFrame := func() error {
		frameMu.Lock()
		snap := clock.Snapshot()
		f := h.scenes.Build(snap, params.request)
		f.Milestones = scene.MilestonesBetween(prev, snap.Now)
		prev = snap.Now
		frameMu.Unlock()
		if err := conn.writeJSON(f); err != nil {
			return err
		}
		metrics.IncStreamMessages()
		return nil
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadLimit(maxCommandBytes)
	wait := 2 * h.config.KeepaliveInterval
	raw.SetReadDeadline(time.Now().Add(wait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wait))
	})

	// Reader: commands until the client goes away.
	go func() {
		defer cancel()
		for {
			var cmd command
			if err := raw.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("clock session read ended", "remote_ip", ip, "error", err)
				}
				return
			}
			raw.SetReadDeadline(time.Now().Add(wait))
			metrics.IncClockCommand(cmd.Cmd)

			rep := reply{Type: "ack", ID: cmd.ID, Cmd: cmd.Cmd}
			if err := applyCommand(clock, cmd, h.config.MaxSpeed); err != nil {
				rep.Type, rep.Error = "error", err.Error()
			}
			rep.Clock = clock.Snapshot()
			if err := conn.writeJSON(rep); err != nil {
				return
			}
			if rep.Type == "ack" && cmd.Cmd != "state" {
				if err := sendFrame(); err != nil {
					return
				}
			}
		}
	}()

	// Pinger.
	go func() {
		ticker := time.NewTicker(h.config.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	if err := sendFrame(); err != nil {
		return
	}
	clock.AddListener(func(time.Time) {
		if err := sendFrame(); err != nil {
			metrics.IncStreamErrors("send_error")
			cancel()
		}
	})
	timectrl.Drive(ctx, timectrl.TickerScheduler{Interval: params.interval}, clock)

	conn.mu.Lock()
	raw.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.mu.Unlock()

	h.logger.Info("clock session closed", "remote_ip", ip, "duration_seconds", int(time.Since(start).Seconds()))
}
