// Write-through mirror of room state, laid out as JSON files:
// rooms/<id>.json holds a lightweight summary, games/<id>.json the full
// state, chats/<id>.json the append-only chat log. The mirror is never
// read back to drive gameplay; it exists for crash recovery and for the
// read-only room listing.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type RoomSummary struct {
	Players   int        `json:"players"`
	Status    RoomStatus `json:"status"`
	CreatedAt int64      `json:"createdAt"`
}

type MirrorStore struct {
	dir string
}

func newMirrorStore(dir string) (*MirrorStore, error) {
	for _, sub := range []string{"rooms", "games", "chats"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("mirror store: %w", err)
		}
	}
	return &MirrorStore{dir: dir}, nil
}

// writeFile writes via a temp file and rename, retrying once. A failed
// mirror write must never fail the game action that triggered it; the
// caller only logs the returned error.
func (s *MirrorStore) writeFile(path string, data []byte) error {
	var err error
	for i := 0; i < 2; i++ {
		tmp := path + ".tmp"
		if err = os.WriteFile(tmp, data, 0o644); err != nil {
			continue
		}
		if err = os.Rename(tmp, path); err == nil {
			return nil
		}
	}
	return err
}

func (s *MirrorStore) gamePath(roomID string) string {
	return filepath.Join(s.dir, "games", roomID+".json")
}

// SaveGame mirrors the full state and refreshes the room summary.
func (s *MirrorStore) SaveGame(g *GameState) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := s.writeFile(s.gamePath(g.RoomID), data); err != nil {
		return err
	}

	summary, err := json.Marshal(RoomSummary{
		Players:   len(g.Players),
		Status:    g.GameStatus,
		CreatedAt: g.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.writeFile(filepath.Join(s.dir, "rooms", g.RoomID+".json"), summary)
}

// AppendChat appends one message to the room's chat log, one JSON
// document per line, retrying once like every other mirror write.
func (s *MirrorStore) AppendChat(roomID string, msg ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, "chats", roomID+".json")
	line := append(data, '\n')
	for i := 0; i < 2; i++ {
		if err = appendLine(path, line); err == nil {
			return nil
		}
	}
	return err
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, err = f.Write(line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// DeleteRoom removes every trace of a room from the mirror.
func (s *MirrorStore) DeleteRoom(roomID string) error {
	var firstErr error
	for _, sub := range []string{"rooms", "games", "chats"} {
		err := os.Remove(filepath.Join(s.dir, sub, roomID+".json"))
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListRooms returns the ids of every mirrored room.
func (s *MirrorStore) ListRooms() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "games"))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// LoadGames reads every mirrored game state, seeding the in-memory index
// after a restart. Unreadable entries are skipped.
func (s *MirrorStore) LoadGames() []*GameState {
	ids, err := s.ListRooms()
	if err != nil {
		return nil
	}

	var games []*GameState
	for _, id := range ids {
		data, err := os.ReadFile(s.gamePath(id))
		if err != nil {
			continue
		}
		var g GameState
		if err := json.Unmarshal(data, &g); err != nil {
			continue
		}
		games = append(games, &g)
	}
	return games
}
