// Game rules for one room. Every operation validates fully before
// mutating, so a failed action leaves the state untouched, and none of
// them draws randomness: dice values are injected by the caller.

package main

import (
	"time"
)

// CapturedToken identifies an opposing token sent back home by a move.
type CapturedToken struct {
	PlayerID   string `json:"playerId"`
	TokenIndex int    `json:"tokenIndex"`
}

// MoveResult describes the outcome of a successful applyMove.
type MoveResult struct {
	PlayerID   string          `json:"playerId"`
	TokenIndex int             `json:"tokenIndex"`
	Token      Token           `json:"token"`
	Captured   []CapturedToken `json:"captured,omitempty"`
	Finished   bool            `json:"finished"`
	Won        bool            `json:"won"`
}

// addPlayer seats a new player in join order. The fourth seat flips the
// room to ready, which is informational only.
func (g *GameState) addPlayer(id, name string) (*Player, error) {
	if len(g.Players) >= maxPlayers {
		return nil, errRoomFull
	}

	g.Players = append(g.Players, newPlayer(id, name, len(g.Players)))
	if len(g.Players) == maxPlayers && !g.GameStarted {
		g.GameStatus = StatusReady
	}
	g.touch()

	return &g.Players[len(g.Players)-1], nil
}

// setReady marks a player ready and starts the game once every present
// player is ready and at least two are seated. Returns true when this
// call started the game.
func (g *GameState) setReady(playerID string) bool {
	p := g.playerByID(playerID)
	if p == nil || g.GameStarted {
		return false
	}
	p.IsReady = true
	g.touch()

	if len(g.Players) < minPlayers {
		return false
	}
	for i := range g.Players {
		if !g.Players[i].IsReady {
			return false
		}
	}

	g.GameStarted = true
	g.GameStatus = StatusPlaying
	g.CurrentPlayerIndex = 0
	return true
}

func (g *GameState) checkTurn(playerID string) error {
	if g.GameStatus == StatusFinished {
		return errGameFinished
	}
	if !g.GameStarted {
		return errGameNotStarted
	}
	if g.currentPlayer().ID != playerID {
		return errNotYourTurn
	}
	return nil
}

// applyRoll records a dice value for the acting player. The value comes
// from the caller so the rules stay deterministic under test.
func (g *GameState) applyRoll(playerID string, value int) error {
	if err := g.checkTurn(playerID); err != nil {
		return err
	}
	if g.DiceValue != 0 {
		return errRollAlreadyPending
	}

	g.DiceValue = value
	g.TurnHistory = append(g.TurnHistory, TurnRecord{
		PlayerID:  playerID,
		DiceValue: value,
		Timestamp: time.Now().UnixMilli(),
	})
	g.touch()

	return nil
}

// applyMove moves one of the acting player's tokens by the pending dice
// value, resolving captures, finish, win, and turn advancement.
func (g *GameState) applyMove(playerID string, tokenIndex int) (*MoveResult, error) {
	if err := g.checkTurn(playerID); err != nil {
		return nil, err
	}
	if g.DiceValue == 0 {
		return nil, errNoPendingRoll
	}
	if tokenIndex < 0 || tokenIndex >= tokensPerPlayer {
		return nil, errInvalidToken
	}

	player := g.currentPlayer()
	token := &player.Tokens[tokenIndex]
	dice := g.DiceValue

	result := &MoveResult{
		PlayerID:   playerID,
		TokenIndex: tokenIndex,
	}

	switch token.Status {
	case TokenHome:
		// A token only leaves the yard on a six.
		if dice != 6 {
			return nil, errIllegalMove
		}
		token.Status = TokenBoard
		token.Position = entryStep(player.Color)

	case TokenBoard:
		target := token.Position + dice
		if target > pathLength {
			// Overshoot: the token needs an exact roll to finish.
			return nil, errIllegalMove
		}
		token.Position = target
		if target == pathLength {
			token.Status = TokenFinished
			player.Score++
			result.Finished = true

			if player.Score == tokensPerPlayer {
				g.GameStatus = StatusFinished
				g.Winner = playerID
				result.Won = true
			}
		} else {
			result.Captured = g.capture(playerID, target)
		}

	default:
		return nil, errIllegalMove
	}

	// A six grants another turn; anything else passes it on. Either way
	// the roll is consumed.
	if dice != 6 {
		g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Players)
	}
	g.DiceValue = 0
	g.touch()

	result.Token = *token
	return result, nil
}

// capture sends every opposing board token sharing the destination step
// back home. Safe cells and home-column steps never capture.
func (g *GameState) capture(actingID string, step int) []CapturedToken {
	if isSafe(step) {
		return nil
	}

	var captured []CapturedToken
	for i := range g.Players {
		p := &g.Players[i]
		if p.ID == actingID {
			continue
		}
		for j := range p.Tokens {
			t := &p.Tokens[j]
			if t.Status == TokenBoard && t.Position == step {
				t.Status = TokenHome
				t.Position = 0
				captured = append(captured, CapturedToken{
					PlayerID:   p.ID,
					TokenIndex: j,
				})
			}
		}
	}
	return captured
}

// hasLegalMove reports whether any of the player's tokens could consume
// the given dice value.
func hasLegalMove(p *Player, dice int) bool {
	for i := range p.Tokens {
		switch p.Tokens[i].Status {
		case TokenHome:
			if dice == 6 {
				return true
			}
		case TokenBoard:
			if p.Tokens[i].Position+dice <= pathLength {
				return true
			}
		}
	}
	return false
}

// passTurn forfeits a pending roll that has no legal move, advancing the
// turn exactly as a consumed non-six roll would. Passing while a move is
// still available is rejected.
func (g *GameState) passTurn(playerID string) error {
	if err := g.checkTurn(playerID); err != nil {
		return err
	}
	if g.DiceValue == 0 {
		return errNoPendingRoll
	}
	if hasLegalMove(g.currentPlayer(), g.DiceValue) {
		return errIllegalMove
	}

	g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Players)
	g.DiceValue = 0
	g.touch()

	return nil
}

// removePlayer drops a player from the room, shifting turn order. The
// turn index is re-clamped so it stays valid, and a room falling below
// two players mid-game reverts to waiting. Returns false if the player
// was not seated here.
func (g *GameState) removePlayer(playerID string) bool {
	idx := -1
	for i := range g.Players {
		if g.Players[i].ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	wasCurrent := idx == g.CurrentPlayerIndex

	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)

	if len(g.Players) > 0 {
		if idx < g.CurrentPlayerIndex {
			g.CurrentPlayerIndex--
		}
		g.CurrentPlayerIndex %= len(g.Players)
		if wasCurrent {
			// The departed player's pending roll dies with them.
			g.DiceValue = 0
		}
	} else {
		g.CurrentPlayerIndex = 0
	}

	if len(g.Players) < minPlayers && g.GameStatus != StatusFinished {
		g.GameStatus = StatusWaiting
		g.GameStarted = false
	} else if !g.GameStarted && g.GameStatus == StatusReady {
		g.GameStatus = StatusWaiting
	}
	g.touch()

	return true
}
