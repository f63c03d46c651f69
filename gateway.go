// Guessbox room gateway
//
// One websocket per (room, nickname) pair. Each connection runs a read
// pump that dispatches inbound action envelopes to the room's handlers
// and a write pump that drains a buffered send channel. Handler errors
// go back to the originating connection only; accepted mutations fan
// the room's full snapshot out to every attached connection.
//
// Features:
// - Rooms validated before upgrade; unknown rooms never upgrade
// - New nicknames join only while the room is waiting; reconnects always resume
// - Ping/pong keepalive; an unresponsive peer is treated as disconnected
// - Slow consumers are dropped rather than allowed to block broadcasts
// - Read-only room listing and history export over plain HTTP
// - In-browser QR button to share a room link, backed by go-qrcode

package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// actionMessage is the inbound client envelope, discriminated by Action.
type actionMessage struct {
	Action         string   `json:"action"`
	Number         *float64 `json:"number,omitempty"`
	Multiplier     *float64 `json:"multiplier,omitempty"`
	TargetNickname string   `json:"target_nickname,omitempty"`
}

// errorMessage is sent only to the connection whose request failed.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newError(err error) errorMessage {
	return errorMessage{
		Type:    "error",
		Message: err.Error(),
	}
}

type client struct {
	conn     *websocket.Conn
	send     chan any
	nickname string
	once     sync.Once
	done     chan struct{}
}

func newClient(conn *websocket.Conn, nickname string) *client {
	return &client{
		conn:     conn,
		send:     make(chan any, 8),
		nickname: nickname,
		done:     make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue hands a message to the write pump without blocking. A client
// whose buffer is full is cut loose; its read pump will run the normal
// disconnect path.
func (c *client) enqueue(msg any) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.close()
	}
}

func (c *client) writePump(cfg *Config) {
	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) readPump(cfg *Config, room *Room) {
	defer func() {
		c.close()
		if state := room.Detach(c); state != nil {
			logf(cfg, "GAMES: Player %q disconnected from room %s", c.nickname, room.id)
			broadcast(room, state)
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	})

	for {
		var msg actionMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.dispatch(cfg, room, msg)
	}
}

// dispatch maps one inbound envelope to a room handler. Errors go back
// to this client only; accepted mutations are broadcast to the room.
func (c *client) dispatch(cfg *Config, room *Room, msg actionMessage) {
	var (
		state   *RoomState
		dropped []*client
		err     error
	)

	switch msg.Action {
	case "start_game":
		state, err = room.StartGame(c.nickname)
	case "choose_number":
		if msg.Number == nil {
			err = ErrInvalidInput
			break
		}
		state, err = room.ChooseNumber(c.nickname, *msg.Number)
	case "new_round":
		state, err = room.NewRound(c.nickname)
	case "stop_game":
		state, err = room.StopGame(c.nickname)
	case "set_multiplier":
		if msg.Multiplier == nil {
			err = ErrInvalidInput
			break
		}
		state, err = room.SetMultiplier(c.nickname, *msg.Multiplier)
	case "remove_player":
		state, dropped, err = room.RemovePlayer(c.nickname, msg.TargetNickname)
	case "force_finish_round":
		state, err = room.ForceFinish(c.nickname)
	case "clear_history":
		state, err = room.ClearHistory(c.nickname)
	default:
		// ignore unknown actions
		return
	}

	if err != nil {
		c.enqueue(newError(err))
		return
	}

	logf(cfg, "GAMES: Player %q sent %q to room %s", c.nickname, msg.Action, room.id)

	broadcast(room, state)

	for _, cl := range dropped {
		cl.close()
	}
}

// broadcast fans a snapshot out to every connection attached to the
// room. The room lock is not held while writing.
func broadcast(room *Room, state *RoomState) {
	for _, cl := range room.recipients() {
		cl.enqueue(state)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS terminates one websocket per (room, nickname) pair.
func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := reg.Get(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade failed for %s: %v", realIP(r), err)
			return
		}

		cl := newClient(conn, ps.ByName("nickname"))

		state, err := room.Attach(cl)
		if err != nil {
			_ = conn.WriteJSON(newError(err))
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %q connected to room %s from %s", cl.nickname, room.id, realIP(r))

		go cl.writePump(cfg)
		broadcast(room, state)
		cl.readPump(cfg, room)
	}
}

func serveRoomList(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		data, err := json.Marshal(reg.Summaries())
		if err != nil {
			http.Error(w, "room listing failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Room list (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveHistory exports a room's resolved rounds as JSON.
func serveHistory(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		room, err := reg.Get(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		data, err := json.Marshal(room.History())
		if err != nil {
			http.Error(w, "history export failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: History for room %s (%s) to %s in %s",
			room.id,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// qrHandler generates a PNG QR code for the current room URL.
func qrHandler(reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := reg.Get(ps.ByName("roomid")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /rooms/:roomid/qr; strip trailing "/qr" to get the room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGame sets up the game surface:
//   - /api/rooms                    → room listing (read-only projection)
//   - /api/rooms/:roomid/history    → history export
//   - /api/ws/:roomid/:nickname     → per-room websocket
//   - /rooms/:roomid/qr             → PNG QR code for that room URL
func registerGame(cfg *Config, reg *Registry, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/api/rooms", serveRoomList(cfg, reg, errs))

	mux.GET(cfg.prefix+"/api/rooms/:roomid/history", serveHistory(cfg, reg, errs))

	mux.GET(cfg.prefix+"/api/ws/:roomid/:nickname", serveWS(cfg, reg))

	mux.GET(cfg.prefix+"/rooms/:roomid/qr", qrHandler(reg))
}
