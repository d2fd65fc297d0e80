package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

// testGame seats the named players in join order; player ids are p0,
// p1, ...
func testGame(names ...string) *GameState {
	g := newGameState("ROOM01", "p0", names[0])
	for i, n := range names[1:] {
		if _, err := g.addPlayer(fmt.Sprintf("p%d", i+1), n); err != nil {
			panic(err)
		}
	}
	return g
}

func startGame(t *testing.T, g *GameState) {
	t.Helper()

	ids := make([]string, 0, len(g.Players))
	for i := range g.Players {
		ids = append(ids, g.Players[i].ID)
	}
	for _, id := range ids {
		g.setReady(id)
	}
	if !g.GameStarted || g.GameStatus != StatusPlaying {
		t.Fatalf("game did not start: started=%v status=%s", g.GameStarted, g.GameStatus)
	}
}

func snapshot(t *testing.T, g *GameState) []byte {
	t.Helper()

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestAddPlayerColorsAndCapacity(t *testing.T) {
	g := testGame("Alice", "Bob", "Carol", "Dave")

	want := []Color{ColorRed, ColorGreen, ColorYellow, ColorBlue}
	for i, c := range want {
		if g.Players[i].Color != c {
			t.Errorf("player %d color = %s, want %s", i, g.Players[i].Color, c)
		}
	}
	if g.GameStatus != StatusReady {
		t.Errorf("full room status = %s, want %s", g.GameStatus, StatusReady)
	}

	if _, err := g.addPlayer("p4", "Eve"); !errors.Is(err, errRoomFull) {
		t.Errorf("fifth join error = %v, want %v", err, errRoomFull)
	}
}

func TestReadyRequiresTwoPlayers(t *testing.T) {
	g := testGame("Alice")
	if started := g.setReady("p0"); started {
		t.Error("single-player room must not start")
	}
	if g.GameStarted || g.GameStatus != StatusWaiting {
		t.Errorf("status = %s, want %s", g.GameStatus, StatusWaiting)
	}
}

func TestReadyStartsWhenAllReady(t *testing.T) {
	g := testGame("Alice", "Bob")
	g.setReady("p0")
	if g.GameStarted {
		t.Fatal("game started before everyone was ready")
	}
	if started := g.setReady("p1"); !started {
		t.Fatal("game should start once all players are ready")
	}
	if g.CurrentPlayerIndex != 0 {
		t.Errorf("currentPlayerIndex = %d, want 0", g.CurrentPlayerIndex)
	}
}

func TestRollPreconditions(t *testing.T) {
	g := testGame("Alice", "Bob")

	if err := g.applyRoll("p0", 3); !errors.Is(err, errGameNotStarted) {
		t.Errorf("roll before start = %v, want %v", err, errGameNotStarted)
	}

	startGame(t, g)

	if err := g.applyRoll("p1", 3); !errors.Is(err, errNotYourTurn) {
		t.Errorf("out-of-turn roll = %v, want %v", err, errNotYourTurn)
	}

	if err := g.applyRoll("p0", 3); err != nil {
		t.Fatalf("roll failed: %v", err)
	}
	if err := g.applyRoll("p0", 5); !errors.Is(err, errRollAlreadyPending) {
		t.Errorf("second roll = %v, want %v", err, errRollAlreadyPending)
	}

	if len(g.TurnHistory) != 1 || g.TurnHistory[0].DiceValue != 3 {
		t.Errorf("turnHistory = %+v, want one entry with value 3", g.TurnHistory)
	}
}

func TestMovePreconditions(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	if _, err := g.applyMove("p0", 0); !errors.Is(err, errNoPendingRoll) {
		t.Errorf("move before roll = %v, want %v", err, errNoPendingRoll)
	}

	g.DiceValue = 6

	if _, err := g.applyMove("p1", 0); !errors.Is(err, errNotYourTurn) {
		t.Errorf("out-of-turn move = %v, want %v", err, errNotYourTurn)
	}
	if _, err := g.applyMove("p0", -1); !errors.Is(err, errInvalidToken) {
		t.Errorf("negative token index = %v, want %v", err, errInvalidToken)
	}
	if _, err := g.applyMove("p0", tokensPerPlayer); !errors.Is(err, errInvalidToken) {
		t.Errorf("token index out of range = %v, want %v", err, errInvalidToken)
	}
}

// A token leaves home iff the pending roll is a six.
func TestHomeExitRequiresSix(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		dice := 1 + rng.Intn(6)
		g.DiceValue = dice

		_, err := g.applyMove("p0", 0)
		if dice == 6 {
			if err != nil {
				t.Fatalf("exit on six failed: %v", err)
			}
			tok := g.Players[0].Tokens[0]
			if tok.Status != TokenBoard || tok.Position != 0 {
				t.Fatalf("token after exit = %+v, want board at 0", tok)
			}
			// Reset for the next iteration; a six retains the turn.
			g.Players[0].Tokens[0] = Token{Status: TokenHome}
		} else {
			if !errors.Is(err, errIllegalMove) {
				t.Fatalf("exit on %d = %v, want %v", dice, err, errIllegalMove)
			}
			g.DiceValue = 0
		}
	}
}

// Overshoot is rejected and the state is unchanged byte-for-byte.
func TestOvershootRejected(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 1000; i++ {
		dice := 1 + rng.Intn(6)
		pos := pathLength - dice + 1 + rng.Intn(dice)
		if pos > pathLength {
			pos = pathLength
		}
		if pos+dice <= pathLength {
			t.Fatalf("bad case: pos=%d dice=%d", pos, dice)
		}

		g.Players[0].Tokens[0] = Token{Status: TokenBoard, Position: pos}
		g.DiceValue = dice
		before := snapshot(t, g)

		if _, err := g.applyMove("p0", 0); !errors.Is(err, errIllegalMove) {
			t.Fatalf("overshoot pos=%d dice=%d = %v, want %v", pos, dice, err, errIllegalMove)
		}
		if !bytes.Equal(before, snapshot(t, g)) {
			t.Fatalf("state mutated by rejected move (pos=%d dice=%d)", pos, dice)
		}

		g.DiceValue = 0
	}
}

func TestCaptureSendsOpponentHome(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	// Bob has a token on step 3 (not safe); Alice lands on it.
	g.Players[1].Tokens[2] = Token{Status: TokenBoard, Position: 3}
	g.Players[0].Tokens[0] = Token{Status: TokenBoard, Position: 1}
	g.DiceValue = 2

	result, err := g.applyMove("p0", 0)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}

	if len(result.Captured) != 1 || result.Captured[0].PlayerID != "p1" || result.Captured[0].TokenIndex != 2 {
		t.Fatalf("captured = %+v, want p1 token 2", result.Captured)
	}
	tok := g.Players[1].Tokens[2]
	if tok.Status != TokenHome || tok.Position != 0 {
		t.Errorf("captured token = %+v, want home", tok)
	}
	if g.Players[0].Tokens[0].Position != 3 {
		t.Errorf("attacker position = %d, want 3", g.Players[0].Tokens[0].Position)
	}
}

func TestSafeCellNeverCaptures(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	// Step 8 is a safe cell.
	g.Players[1].Tokens[0] = Token{Status: TokenBoard, Position: 8}
	g.Players[0].Tokens[0] = Token{Status: TokenBoard, Position: 5}
	g.DiceValue = 3

	result, err := g.applyMove("p0", 0)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if len(result.Captured) != 0 {
		t.Fatalf("captured on safe cell: %+v", result.Captured)
	}
	if g.Players[1].Tokens[0].Status != TokenBoard {
		t.Error("token on safe cell was sent home")
	}
}

func TestOwnTokensAreNotCaptured(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	g.Players[0].Tokens[1] = Token{Status: TokenBoard, Position: 5}
	g.Players[0].Tokens[0] = Token{Status: TokenBoard, Position: 2}
	g.DiceValue = 3

	result, err := g.applyMove("p0", 0)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if len(result.Captured) != 0 {
		t.Fatalf("captured own token: %+v", result.Captured)
	}
}

func TestFinishingMoveDoesNotCapture(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	// Bob has a token one short of the end; Alice finishing must not
	// touch it.
	g.Players[1].Tokens[0] = Token{Status: TokenBoard, Position: pathLength - 1}
	g.Players[0].Tokens[0] = Token{Status: TokenBoard, Position: pathLength - 4}
	g.DiceValue = 4

	result, err := g.applyMove("p0", 0)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if !result.Finished {
		t.Fatal("move should have finished the token")
	}
	if len(result.Captured) != 0 {
		t.Fatalf("finishing move captured: %+v", result.Captured)
	}
	if g.Players[0].Score != 1 {
		t.Errorf("score = %d, want 1", g.Players[0].Score)
	}
	tok := g.Players[0].Tokens[0]
	if tok.Status != TokenFinished || tok.Position != pathLength {
		t.Errorf("token = %+v, want finished at %d", tok, pathLength)
	}
}

// The turn advances exactly when the consumed roll was not a six.
func TestTurnAdvancement(t *testing.T) {
	g := testGame("Alice", "Bob", "Carol")
	startGame(t, g)

	// Six: exit a token, keep the turn.
	g.DiceValue = 6
	if _, err := g.applyMove("p0", 0); err != nil {
		t.Fatal(err)
	}
	if g.CurrentPlayerIndex != 0 {
		t.Errorf("index after six = %d, want 0", g.CurrentPlayerIndex)
	}
	if g.DiceValue != 0 {
		t.Errorf("diceValue after move = %d, want 0", g.DiceValue)
	}

	// Non-six: advance to the next player.
	g.DiceValue = 3
	if _, err := g.applyMove("p0", 0); err != nil {
		t.Fatal(err)
	}
	if g.CurrentPlayerIndex != 1 {
		t.Errorf("index after non-six = %d, want 1", g.CurrentPlayerIndex)
	}
	if g.DiceValue != 0 {
		t.Errorf("diceValue after move = %d, want 0", g.DiceValue)
	}
}

func TestWinDetection(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	p := &g.Players[0]
	for i := 0; i < 3; i++ {
		p.Tokens[i] = Token{Status: TokenFinished, Position: pathLength}
	}
	p.Score = 3
	p.Tokens[3] = Token{Status: TokenBoard, Position: pathLength - 2}

	g.DiceValue = 2
	result, err := g.applyMove("p0", 3)
	if err != nil {
		t.Fatalf("winning move failed: %v", err)
	}
	if !result.Won {
		t.Fatal("result.Won = false")
	}
	if g.GameStatus != StatusFinished {
		t.Errorf("status = %s, want %s", g.GameStatus, StatusFinished)
	}
	if g.Winner != "p0" {
		t.Errorf("winner = %q, want p0", g.Winner)
	}

	// A finished room accepts no more actions.
	if err := g.applyRoll("p1", 4); !errors.Is(err, errGameFinished) {
		t.Errorf("roll after win = %v, want %v", err, errGameFinished)
	}
	if _, err := g.applyMove("p1", 0); !errors.Is(err, errGameFinished) {
		t.Errorf("move after win = %v, want %v", err, errGameFinished)
	}
}

// Two-player walkthrough: create, join, ready, a six opening a token with
// the turn retained, then a non-six passing the turn.
func TestScenarioAliceAndBob(t *testing.T) {
	g := testGame("Alice", "Bob")

	if g.GameStatus != StatusWaiting || len(g.Players) != 2 {
		t.Fatalf("setup: status=%s players=%d", g.GameStatus, len(g.Players))
	}

	startGame(t, g)

	// Alice rolls a six and opens token 0.
	if err := g.applyRoll("p0", 6); err != nil {
		t.Fatal(err)
	}
	if _, err := g.applyMove("p0", 0); err != nil {
		t.Fatal(err)
	}
	tok := g.Players[0].Tokens[0]
	if tok.Status != TokenBoard || tok.Position != 0 {
		t.Fatalf("token = %+v, want board at 0", tok)
	}
	if g.CurrentPlayerIndex != 0 || g.DiceValue != 0 {
		t.Fatalf("after six: index=%d dice=%d, want 0/0", g.CurrentPlayerIndex, g.DiceValue)
	}

	// Alice rolls a three and advances; the turn passes to Bob.
	if err := g.applyRoll("p0", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := g.applyMove("p0", 0); err != nil {
		t.Fatal(err)
	}
	if g.Players[0].Tokens[0].Position != 3 {
		t.Errorf("position = %d, want 3", g.Players[0].Tokens[0].Position)
	}
	if g.CurrentPlayerIndex != 1 {
		t.Errorf("index = %d, want 1", g.CurrentPlayerIndex)
	}

	// Bob opens a token and lands on Alice's step 3: capture.
	if err := g.applyRoll("p1", 6); err != nil {
		t.Fatal(err)
	}
	if _, err := g.applyMove("p1", 0); err != nil {
		t.Fatal(err)
	}
	if err := g.applyRoll("p1", 3); err != nil {
		t.Fatal(err)
	}
	result, err := g.applyMove("p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Captured) != 1 || result.Captured[0].PlayerID != "p0" {
		t.Fatalf("captured = %+v, want Alice's token", result.Captured)
	}
	if g.Players[0].Tokens[0].Status != TokenHome {
		t.Error("Alice's token should be back home")
	}
	if g.Players[1].Tokens[0].Position != 3 {
		t.Errorf("Bob's token at %d, want 3", g.Players[1].Tokens[0].Position)
	}
}

func TestForcedPass(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	// All tokens home, non-six pending: no legal move, pass advances.
	g.DiceValue = 4
	if err := g.passTurn("p0"); err != nil {
		t.Fatalf("forced pass failed: %v", err)
	}
	if g.CurrentPlayerIndex != 1 || g.DiceValue != 0 {
		t.Errorf("after pass: index=%d dice=%d, want 1/0", g.CurrentPlayerIndex, g.DiceValue)
	}

	// A pass with a legal move available is rejected.
	g.Players[1].Tokens[0] = Token{Status: TokenBoard, Position: 10}
	g.DiceValue = 4
	if err := g.passTurn("p1"); !errors.Is(err, errIllegalMove) {
		t.Errorf("pass with moves = %v, want %v", err, errIllegalMove)
	}

	// All board tokens would overshoot: pass is legal again.
	g.Players[1].Tokens[0] = Token{Status: TokenBoard, Position: pathLength - 1}
	for i := 1; i < tokensPerPlayer; i++ {
		g.Players[1].Tokens[i] = Token{Status: TokenFinished, Position: pathLength}
	}
	g.DiceValue = 4
	if err := g.passTurn("p1"); err != nil {
		t.Errorf("overshoot pass = %v, want nil", err)
	}
}

func TestHasLegalMove(t *testing.T) {
	p := newPlayer("p0", "Alice", 0)

	if hasLegalMove(&p, 5) {
		t.Error("all home with a five should have no move")
	}
	if !hasLegalMove(&p, 6) {
		t.Error("all home with a six should have a move")
	}

	p.Tokens[0] = Token{Status: TokenBoard, Position: pathLength - 2}
	if hasLegalMove(&p, 5) {
		t.Error("overshooting board token should not count")
	}
	if !hasLegalMove(&p, 2) {
		t.Error("exact finish should count")
	}
}

func TestRemovePlayerReclampsTurnIndex(t *testing.T) {
	g := testGame("Alice", "Bob", "Carol")
	startGame(t, g)

	// Carol's turn; Carol leaves: index wraps to 0.
	g.CurrentPlayerIndex = 2
	if !g.removePlayer("p2") {
		t.Fatal("removePlayer returned false")
	}
	if g.CurrentPlayerIndex != 0 {
		t.Errorf("index = %d, want 0", g.CurrentPlayerIndex)
	}

	// Two players remain, so the game keeps going.
	if g.GameStatus != StatusPlaying {
		t.Errorf("status = %s, want %s", g.GameStatus, StatusPlaying)
	}
}

func TestRemovePlayerBeforeCurrentShiftsIndex(t *testing.T) {
	g := testGame("Alice", "Bob", "Carol")
	startGame(t, g)

	g.CurrentPlayerIndex = 2
	g.removePlayer("p0")

	// Carol kept the turn even though her slot shifted.
	if g.currentPlayer().ID != "p2" {
		t.Errorf("current player = %s, want p2", g.currentPlayer().ID)
	}
}

func TestRemovePlayerForcesWaitingBelowTwo(t *testing.T) {
	g := testGame("Alice", "Bob")
	startGame(t, g)

	g.removePlayer("p1")

	if g.GameStatus != StatusWaiting || g.GameStarted {
		t.Errorf("status=%s started=%v, want waiting/false", g.GameStatus, g.GameStarted)
	}
	if len(g.Players) != 1 {
		t.Errorf("players = %d, want 1", len(g.Players))
	}
}

func TestRemoveLastPlayerEmptiesRoom(t *testing.T) {
	g := testGame("Alice")

	if !g.removePlayer("p0") {
		t.Fatal("removePlayer returned false")
	}
	if len(g.Players) != 0 {
		t.Errorf("players = %d, want 0", len(g.Players))
	}
	if g.removePlayer("p0") {
		t.Error("second removal should return false")
	}
}

func TestDiceRoller(t *testing.T) {
	d := newDiceRoller(42)
	for i := 0; i < 1000; i++ {
		v := d.roll()
		if v < 1 || v > 6 {
			t.Fatalf("roll = %d, want 1-6", v)
		}
	}

	// Same seed, same sequence.
	a, b := newDiceRoller(7), newDiceRoller(7)
	for i := 0; i < 100; i++ {
		if av, bv := a.roll(), b.roll(); av != bv {
			t.Fatalf("seeded rollers diverged: %d != %d", av, bv)
		}
	}
}

// Structural invariants hold across a long random game.
func TestInvariantsUnderRandomPlay(t *testing.T) {
	g := testGame("Alice", "Bob", "Carol", "Dave")
	startGame(t, g)

	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 5000 && g.GameStatus != StatusFinished; i++ {
		current := g.currentPlayer()
		dice := 1 + rng.Intn(6)

		if err := g.applyRoll(current.ID, dice); err != nil {
			t.Fatalf("roll %d: %v", i, err)
		}

		if !hasLegalMove(current, dice) {
			if err := g.passTurn(current.ID); err != nil {
				t.Fatalf("pass %d: %v", i, err)
			}
		} else {
			// Try tokens until one moves; hasLegalMove guarantees one will.
			moved := false
			for tok := 0; tok < tokensPerPlayer; tok++ {
				if _, err := g.applyMove(current.ID, tok); err == nil {
					moved = true
					break
				} else if !errors.Is(err, errIllegalMove) {
					t.Fatalf("move %d: %v", i, err)
				}
			}
			if !moved {
				t.Fatalf("hasLegalMove true but no token could move (dice=%d)", dice)
			}
		}

		if len(g.Players) > maxPlayers {
			t.Fatalf("players = %d", len(g.Players))
		}
		if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
			t.Fatalf("currentPlayerIndex = %d", g.CurrentPlayerIndex)
		}
		for j := range g.Players {
			if s := g.Players[j].Score; s < 0 || s > tokensPerPlayer {
				t.Fatalf("score = %d", s)
			}
		}
	}

	if g.GameStatus == StatusFinished {
		winner := g.playerByID(g.Winner)
		if winner == nil || winner.Score != tokensPerPlayer {
			t.Errorf("winner %q score mismatch", g.Winner)
		}
	}
}
