package main

import (
	"time"
)

// TokenStatus tracks a token through its lifecycle: waiting in the yard,
// travelling the path, or done.
type TokenStatus string

const (
	TokenHome     TokenStatus = "home"
	TokenBoard    TokenStatus = "board"
	TokenFinished TokenStatus = "finished"
)

// Token is one of a player's four pieces. Position is a step index into
// the path and only meaningful while the token is on the board; it is
// frozen at pathLength once the token finishes.
type Token struct {
	Position int         `json:"position"`
	Status   TokenStatus `json:"status"`
}

// Player is one seat in a room. ID is the owning connection's identity
// and is stable for the life of that connection.
type Player struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Color   Color                  `json:"color"`
	Tokens  [tokensPerPlayer]Token `json:"tokens"`
	Score   int                    `json:"score"`
	IsReady bool                   `json:"isReady"`
}

// RoomStatus is the room-level state machine: waiting -> ready ->
// playing -> finished. "ready" is informational (room full); "finished"
// is terminal.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusReady    RoomStatus = "ready"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

// TurnRecord is one entry in the append-only roll history.
type TurnRecord struct {
	PlayerID  string `json:"playerId"`
	DiceValue int    `json:"diceValue"`
	Timestamp int64  `json:"timestamp"`
}

// ChatMessage is one entry in a room's chat log.
type ChatMessage struct {
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	PlayerColor Color  `json:"playerColor"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
}

// GameState is the authoritative state of one room. Player order is join
// order is turn order.
type GameState struct {
	RoomID             string       `json:"roomId"`
	Players            []Player     `json:"players"`
	CurrentPlayerIndex int          `json:"currentPlayerIndex"`
	DiceValue          int          `json:"diceValue"`
	GameStarted        bool         `json:"gameStarted"`
	GameStatus         RoomStatus   `json:"gameStatus"`
	Winner             string       `json:"winner,omitempty"`
	TurnHistory        []TurnRecord `json:"turnHistory"`
	CreatedAt          int64        `json:"createdAt"`
	UpdatedAt          int64        `json:"updatedAt"`
}

func newPlayer(id, name string, ordinal int) Player {
	if name == "" {
		short := id
		if len(short) > 4 {
			short = short[:4]
		}
		name = "Player_" + short
	}

	p := Player{
		ID:    id,
		Name:  name,
		Color: colorForOrdinal(ordinal),
	}
	for i := range p.Tokens {
		p.Tokens[i] = Token{Status: TokenHome}
	}
	return p
}

// newGameState creates a one-player room owned by its creator, who is
// always seated red.
func newGameState(roomID, playerID, playerName string) *GameState {
	now := time.Now().UnixMilli()
	return &GameState{
		RoomID:      roomID,
		Players:     []Player{newPlayer(playerID, playerName, 0)},
		GameStatus:  StatusWaiting,
		TurnHistory: []TurnRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// playerByID returns a pointer into Players, or nil.
func (g *GameState) playerByID(id string) *Player {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

func (g *GameState) currentPlayer() *Player {
	if len(g.Players) == 0 {
		return nil
	}
	return &g.Players[g.CurrentPlayerIndex]
}

func (g *GameState) touch() {
	g.UpdatedAt = time.Now().UnixMilli()
}
