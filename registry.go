/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"strconv"
)

// RoomSummary is the read-only projection served by the room listing.
type RoomSummary struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	PlayerCount int    `json:"player_count"`
	GameStatus  string `json:"game_status"`
}

// Registry holds the fixed set of rooms provisioned at startup. Rooms
// are never created or deleted at runtime, so the table itself needs
// no locking; each room guards its own state.
type Registry struct {
	rooms map[string]*Room
	order []string
}

func newRegistry(cfg *Config) *Registry {
	reg := &Registry{
		rooms: make(map[string]*Room, len(cfg.rooms)),
	}

	for i, name := range cfg.rooms {
		id := strconv.Itoa(i + 1)
		reg.rooms[id] = newRoom(id, name, cfg)
		reg.order = append(reg.order, id)
	}

	return reg
}

func (reg *Registry) Get(id string) (*Room, error) {
	room, ok := reg.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Summaries lists every provisioned room, counting connected players
// only. Ordering matches the provisioning order.
func (reg *Registry) Summaries() []RoomSummary {
	summaries := make([]RoomSummary, 0, len(reg.order))

	for _, id := range reg.order {
		room := reg.rooms[id]

		room.mu.Lock()
		summaries = append(summaries, RoomSummary{
			RoomID:      room.id,
			RoomName:    room.name,
			PlayerCount: room.connectedCountLocked(),
			GameStatus:  room.status,
		})
		room.mu.Unlock()
	}

	return summaries
}
