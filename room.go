/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Room state machine:
//
//	waiting → choosing → results
//	   ↑         ↑  |
//	   |         |  ↓
//	   +---------+--+
//
// Transition rules:
//   - waiting → choosing: admin starts the game (enough connected players)
//   - choosing → results: every connected player has chosen, or the admin
//     forces the round to finish with at least one submission
//   - results → choosing: admin starts a new round
//   - results → waiting: admin stops the game, reopening the room for joins
//
// All transitions are admin-gated except the automatic all-chosen
// completion. Every mutation for a room runs under its mutex, and each
// successful mutation returns the snapshot that was built before the
// lock was released, so broadcasts never hold the lock during I/O.
const (
	statusWaiting  = "waiting"
	statusChoosing = "choosing"
	statusResults  = "results"
)

const maxNicknameLength = 30

// session is the server-side record for one participant. It outlives
// the connection that created it: a disconnect only flips connected,
// so a player rejoining with the same nickname resumes exactly where
// they left off.
type session struct {
	id        string
	nickname  string
	joinOrder int
	isAdmin   bool
	connected bool
	number    *float64
}

// PlayerState is the wire form of a session. Number is withheld until
// the round resolves so players cannot peek at each other's picks.
type PlayerState struct {
	PlayerID  string   `json:"player_id"`
	Nickname  string   `json:"nickname"`
	IsAdmin   bool     `json:"is_admin"`
	Connected bool     `json:"connected"`
	HasChosen bool     `json:"has_chosen"`
	Number    *float64 `json:"number"`
}

// Round is the immutable record of one resolved round.
type Round struct {
	RoundNumber  int                `json:"round_number"`
	PlayersData  map[string]float64 `json:"players_data"`
	TotalSum     float64            `json:"total_sum"`
	Average      float64            `json:"average"`
	TargetNumber float64            `json:"target_number"`
	Multiplier   float64            `json:"multiplier"`
	Winner       string             `json:"winner"`
	Timestamp    string             `json:"timestamp"`
}

// RoomState is the full snapshot broadcast to every connection in a
// room after each accepted mutation. Full state rather than diffs, so
// clients reconcile by replacement.
type RoomState struct {
	Type         string        `json:"type"`
	RoomID       string        `json:"room_id"`
	RoomName     string        `json:"room_name"`
	CurrentRound int           `json:"current_round"`
	GameStatus   string        `json:"game_status"`
	Multiplier   float64       `json:"multiplier"`
	Players      []PlayerState `json:"players"`
	GameHistory  []Round       `json:"game_history"`
}

type Room struct {
	id         string
	name       string
	minPlayers int

	mu         sync.Mutex
	status     string
	round      int
	multiplier float64
	sessions   []*session // join order
	history    []Round
	clients    map[*client]struct{}
}

func newRoom(id, name string, cfg *Config) *Room {
	return &Room{
		id:         id,
		name:       name,
		minPlayers: cfg.minPlayers,
		status:     statusWaiting,
		multiplier: cfg.multiplier,
		clients:    make(map[*client]struct{}),
	}
}

func validNickname(nickname string) bool {
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return false
	}
	for _, r := range nickname {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func (r *Room) findLocked(nickname string) *session {
	for _, s := range r.sessions {
		if s.nickname == nickname {
			return s
		}
	}
	return nil
}

func (r *Room) requireAdminLocked(nickname string) (*session, error) {
	s := r.findLocked(nickname)
	if s == nil {
		return nil, ErrUnknownPlayer
	}
	if !s.isAdmin {
		return nil, ErrForbidden
	}
	return s, nil
}

// ensureAdminLocked enforces the single-admin invariant: keep a
// connected admin if one exists, otherwise promote the earliest-joined
// connected session. With nobody connected the room has no admin;
// promotion happens on the next attach.
func (r *Room) ensureAdminLocked() {
	for _, s := range r.sessions {
		if s.isAdmin && s.connected {
			return
		}
	}
	for _, s := range r.sessions {
		s.isAdmin = false
	}
	for _, s := range r.sessions {
		if s.connected {
			s.isAdmin = true
			return
		}
	}
}

func (r *Room) connectedCountLocked() int {
	count := 0
	for _, s := range r.sessions {
		if s.connected {
			count++
		}
	}
	return count
}

// Attach binds a live connection to a session, creating or resuming it
// as needed. New nicknames may only join while the room is waiting;
// existing sessions may reconnect in any status.
func (r *Room) Attach(cl *client) (*RoomState, error) {
	if !validNickname(cl.nickname) {
		return nil, ErrInvalidNickname
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findLocked(cl.nickname)
	switch {
	case s == nil:
		if r.status != statusWaiting {
			return nil, ErrGameInProgress
		}
		s = &session{
			id:        uuid.NewString(),
			nickname:  cl.nickname,
			joinOrder: len(r.sessions),
			connected: true,
		}
		r.sessions = append(r.sessions, s)
	default:
		for other := range r.clients {
			if other.nickname == cl.nickname {
				return nil, ErrNicknameInUse
			}
		}
		s.connected = true
	}

	r.ensureAdminLocked()
	r.clients[cl] = struct{}{}

	// A reconnect can shrink the set of unchosen connected players
	// down to zero, just like a disconnect can.
	if r.status == statusChoosing {
		r.maybeFinishLocked()
	}

	return r.snapshotLocked(), nil
}

// Detach removes a connection. The session is only marked disconnected
// when no other socket for the same nickname remains attached, so a
// reconnect racing the close of its stale predecessor never leaves the
// player incorrectly offline. Returns nil when nothing changed.
func (r *Room) Detach(cl *client) *RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[cl]; !ok {
		return nil
	}
	delete(r.clients, cl)

	for other := range r.clients {
		if other.nickname == cl.nickname {
			return nil
		}
	}

	s := r.findLocked(cl.nickname)
	if s == nil {
		return nil
	}
	s.connected = false
	r.ensureAdminLocked()

	if r.status == statusChoosing {
		r.maybeFinishLocked()
	}

	return r.snapshotLocked()
}

// StartGame begins the first (or next) round from the waiting state.
func (r *Room) StartGame(nickname string) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}
	if r.status != statusWaiting {
		return nil, ErrInvalidState
	}
	if r.connectedCountLocked() < r.minPlayers {
		return nil, fmt.Errorf("%w: at least %d connected player(s) required", ErrInvalidState, r.minPlayers)
	}

	r.beginChoosingLocked()

	return r.snapshotLocked(), nil
}

func (r *Room) beginChoosingLocked() {
	r.round++
	for _, s := range r.sessions {
		s.number = nil
	}
	r.status = statusChoosing
}

// ChooseNumber locks in a player's number for the current round. When
// every connected player has chosen, the round resolves automatically.
func (r *Room) ChooseNumber(nickname string, number float64) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findLocked(nickname)
	if s == nil {
		return nil, ErrUnknownPlayer
	}
	if r.status != statusChoosing {
		return nil, ErrInvalidState
	}
	if s.number != nil {
		return nil, ErrAlreadyChosen
	}
	if !validNumber(number) {
		return nil, fmt.Errorf("%w: number must be between %v and %v with at most two decimals", ErrInvalidInput, minNumber, maxNumber)
	}

	s.number = &number
	r.maybeFinishLocked()

	return r.snapshotLocked(), nil
}

// NewRound starts another round directly from the results state.
func (r *Room) NewRound(nickname string) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}
	if r.status != statusResults {
		return nil, ErrInvalidState
	}

	r.beginChoosingLocked()

	return r.snapshotLocked(), nil
}

// StopGame returns the room to waiting, reopening it for new joins.
// History and sessions are retained.
func (r *Room) StopGame(nickname string) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}
	if r.status != statusResults {
		return nil, ErrInvalidState
	}

	for _, s := range r.sessions {
		s.number = nil
	}
	r.status = statusWaiting

	return r.snapshotLocked(), nil
}

// SetMultiplier changes the target multiplier for future rounds.
func (r *Room) SetMultiplier(nickname string, multiplier float64) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}
	if !validMultiplier(multiplier) {
		return nil, fmt.Errorf("%w: multiplier must be between %v and %v", ErrInvalidInput, minMultiplier, maxMultiplier)
	}

	r.multiplier = multiplier

	return r.snapshotLocked(), nil
}

// RemovePlayer forcibly disconnects a non-admin player. The session is
// kept, so the removed player may reconnect later. Any sockets backing
// the target are returned for the caller to close after broadcasting.
func (r *Room) RemovePlayer(nickname, target string) (*RoomState, []*client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, nil, err
	}
	if target == nickname {
		return nil, nil, fmt.Errorf("%w: cannot remove yourself", ErrForbidden)
	}

	t := r.findLocked(target)
	if t == nil {
		return nil, nil, ErrUnknownPlayer
	}
	if t.isAdmin {
		return nil, nil, ErrForbidden
	}

	t.connected = false

	var dropped []*client
	for cl := range r.clients {
		if cl.nickname == target {
			delete(r.clients, cl)
			dropped = append(dropped, cl)
		}
	}

	r.ensureAdminLocked()

	if r.status == statusChoosing {
		r.maybeFinishLocked()
	}

	return r.snapshotLocked(), dropped, nil
}

// ForceFinish resolves the current round from the numbers submitted so
// far, excluding players who have not chosen.
func (r *Room) ForceFinish(nickname string) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}
	if r.status != statusChoosing {
		return nil, ErrInvalidState
	}

	if err := r.finishRoundLocked(); err != nil {
		return nil, err
	}

	return r.snapshotLocked(), nil
}

// ClearHistory empties the round history. The round counter keeps
// incrementing, so round numbers never collide with exported data.
func (r *Room) ClearHistory(nickname string) (*RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireAdminLocked(nickname); err != nil {
		return nil, err
	}

	r.history = nil

	return r.snapshotLocked(), nil
}

// maybeFinishLocked resolves the round when at least one player is
// still connected and every one of them has chosen.
func (r *Room) maybeFinishLocked() {
	connected := 0
	for _, s := range r.sessions {
		if !s.connected {
			continue
		}
		if s.number == nil {
			return
		}
		connected++
	}
	if connected == 0 {
		return
	}

	_ = r.finishRoundLocked()
}

func (r *Room) finishRoundLocked() error {
	var subs []submission
	for _, s := range r.sessions {
		if s.connected && s.number != nil {
			subs = append(subs, submission{
				nickname:  s.nickname,
				joinOrder: s.joinOrder,
				number:    *s.number,
			})
		}
	}

	out, err := score(subs, r.multiplier)
	if err != nil {
		return err
	}

	players := make(map[string]float64, len(subs))
	for _, sub := range subs {
		players[sub.nickname] = sub.number
	}

	r.history = append(r.history, Round{
		RoundNumber:  r.round,
		PlayersData:  players,
		TotalSum:     round2(out.totalSum),
		Average:      out.average,
		TargetNumber: out.target,
		Multiplier:   r.multiplier,
		Winner:       out.winner,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
	r.status = statusResults

	return nil
}

// Snapshot returns the room's current broadcastable state.
func (r *Room) Snapshot() *RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() *RoomState {
	players := make([]PlayerState, 0, len(r.sessions))
	for _, s := range r.sessions {
		p := PlayerState{
			PlayerID:  s.id,
			Nickname:  s.nickname,
			IsAdmin:   s.isAdmin,
			Connected: s.connected,
			HasChosen: s.number != nil,
		}
		if r.status == statusResults {
			p.Number = s.number
		}
		players = append(players, p)
	}

	return &RoomState{
		Type:         "room_state",
		RoomID:       r.id,
		RoomName:     r.name,
		CurrentRound: r.round,
		GameStatus:   r.status,
		Multiplier:   r.multiplier,
		Players:      players,
		GameHistory:  append(make([]Round, 0, len(r.history)), r.history...),
	}
}

// History returns a copy of the room's resolved rounds.
func (r *Room) History() []Round {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append(make([]Round, 0, len(r.history)), r.history...)
}

// recipients returns the connections currently attached to the room.
func (r *Room) recipients() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*client, 0, len(r.clients))
	for cl := range r.clients {
		clients = append(clients, cl)
	}
	return clients
}
