// Ludo room server
//
// Two to four remote players share one authoritative game state per room.
// Each player has four tokens travelling a 57-step color-relative path;
// a six is needed to leave the yard and grants an extra turn, landing on
// an opposing token outside a safe cell sends it home, and the first
// player to bring all four tokens to the end wins.
//
// Features:
// - One WebSocket endpoint; rooms are created and joined by message
// - Room codes are 6 random chars via crypto/rand, collision-checked
// - One goroutine per room owns its state: an action is validated,
//   applied, mirrored, and broadcast before the next one is processed,
//   and rooms never share a lock
// - The acting player is always resolved from the connection identity,
//   never from a client-supplied id
// - Full game state is broadcast to the room after every mutation
// - Per-room chat, mirrored to an append-only log
// - Rooms are deleted when the last player leaves, and idle rooms are
//   reaped after a configurable timeout
// - In-browser QR button to share the room URL, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// ClientMessage is the envelope for every client-to-server event. The
// playerId some clients include is accepted but ignored: the server only
// trusts the connection's own identity.
type ClientMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	TokenIndex *int   `json:"tokenIndex,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RoomCreatedMessage replies to create-room; the creator is seated red.
type RoomCreatedMessage struct {
	Type        string     `json:"type"` // "room-created"
	RoomID      string     `json:"roomId"`
	GameState   *GameState `json:"gameState"`
	PlayerID    string     `json:"playerId"`
	PlayerColor Color      `json:"playerColor"`
}

// RoomJoinedMessage replies to join-room, for the joiner only.
type RoomJoinedMessage struct {
	Type        string     `json:"type"` // "room-joined"
	RoomID      string     `json:"roomId"`
	GameState   *GameState `json:"gameState"`
	PlayerID    string     `json:"playerId"`
	PlayerColor Color      `json:"playerColor"`
}

// PlayerJoinedMessage is broadcast to the whole room on a join.
type PlayerJoinedMessage struct {
	Type      string     `json:"type"` // "player-joined"
	Player    Player     `json:"player"`
	GameState *GameState `json:"gameState"`
	Message   string     `json:"message"`
}

// GameUpdateMessage broadcasts the full state after ready and pass
// actions.
type GameUpdateMessage struct {
	Type      string     `json:"type"` // "game-update"
	GameState *GameState `json:"gameState"`
}

// DiceRolledMessage is broadcast after a successful roll.
type DiceRolledMessage struct {
	Type      string     `json:"type"` // "dice-rolled"
	PlayerID  string     `json:"playerId"`
	DiceValue int        `json:"diceValue"`
	GameState *GameState `json:"gameState"`
}

// TokenMovedMessage is broadcast after a successful move.
type TokenMovedMessage struct {
	Type       string          `json:"type"` // "token-moved"
	PlayerID   string          `json:"playerId"`
	TokenIndex int             `json:"tokenIndex"`
	Token      Token           `json:"token"`
	Captured   []CapturedToken `json:"captured,omitempty"`
	GameState  *GameState      `json:"gameState"`
}

// NewChatMessage broadcasts one chat entry.
type NewChatMessage struct {
	Type string `json:"type"` // "new-chat"
	ChatMessage
}

// PlayerLeftMessage is broadcast to the remaining players.
type PlayerLeftMessage struct {
	Type      string     `json:"type"` // "player-left"
	PlayerID  string     `json:"playerId"`
	GameState *GameState `json:"gameState"`
	Message   string     `json:"message"`
}

// GameStateMessage replies to get-game-state, for the requester only.
type GameStateMessage struct {
	Type      string     `json:"type"` // "game-state"
	GameState *GameState `json:"gameState"`
}

// ErrorMessage is sent to the offending connection only, never broadcast.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	// room is the client's current room. Only the read pump touches it.
	room *Room
}

type joinRequest struct {
	client *Client
	name   string
	// seated receives the joined player, or nil when the join was
	// rejected, so the read pump knows whether the client is in.
	seated chan *Player
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

type leaveRequest struct {
	client *Client
	// gone means the connection dropped; the client's send channel is
	// closed once it is out of the room. A plain leave-room keeps the
	// connection alive for another room.
	gone bool
}

// Room owns one game. All state mutation happens on its run goroutine;
// the mutex only guards lastActive for the reaper.
type Room struct {
	id      string
	state   *GameState
	clients map[*Client]bool
	chat    []ChatMessage

	joins  chan joinRequest
	acts   chan actionRequest
	leaves chan leaveRequest
	done   chan struct{}

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newRoom(id string, state *GameState) *Room {
	now := time.Now()
	return &Room{
		id:         id,
		state:      state,
		clients:    make(map[*Client]bool),
		joins:      make(chan joinRequest),
		acts:       make(chan actionRequest),
		leaves:     make(chan leaveRequest),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *Room) touchActive() {
	r.mu.Lock()
	r.lastActive = time.Now()
	r.mu.Unlock()
}

func (r *Room) run(rm *RoomManager) {
	for {
		select {
		case jr := <-r.joins:
			r.touchActive()
			r.handleJoin(rm, jr)

		case ar := <-r.acts:
			r.touchActive()
			r.handleAction(rm, ar)

		case lr := <-r.leaves:
			r.touchActive()
			if r.handleLeave(rm, lr) {
				return
			}

		case <-r.done:
			// Reaped. Closing the connections unwinds each read pump,
			// which closes its own send channel once it sees done.
			for c := range r.clients {
				if c.conn != nil {
					_ = c.conn.Close()
				}
			}
			return
		}
	}
}

// sendTo delivers one message to one client still in the room, dropping
// the client if its send buffer is full.
func (r *Room) sendTo(c *Client, msg any) {
	if !r.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		r.drop(c)
	}
}

func (r *Room) broadcast(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			r.drop(client)
		}
	}
}

// drop severs a slow client's connection without touching its send
// channel. Closing the conn unwinds the client's read pump, whose leave
// is the single place the channel is ever closed; closing it here would
// race with that pump still submitting actions.
func (r *Room) drop(c *Client) {
	delete(r.clients, c)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// persist mirrors the current state; failures are logged and the action
// proceeds regardless.
func (r *Room) persist(rm *RoomManager) {
	if rm.store == nil {
		return
	}
	if err := rm.store.SaveGame(r.state); err != nil {
		logf(rm.cfg, "STORE: Mirror write for %s failed: %v", r.id, err)
	}
}

func (r *Room) handleJoin(rm *RoomManager, jr joinRequest) {
	c := jr.client

	player, err := r.state.addPlayer(c.playerID, jr.name)
	if err != nil {
		c.sendDirect(ErrorMessage{Type: "error", Message: err.Error()})
		jr.seated <- nil
		return
	}

	r.clients[c] = true
	jr.seated <- player
	r.persist(rm)

	r.broadcast(PlayerJoinedMessage{
		Type:      "player-joined",
		Player:    *player,
		GameState: r.state,
		Message:   player.Name + " joined the game!",
	})
	r.sendTo(c, RoomJoinedMessage{
		Type:        "room-joined",
		RoomID:      r.id,
		GameState:   r.state,
		PlayerID:    c.playerID,
		PlayerColor: player.Color,
	})

	logf(rm.cfg, "GAMES: Player %q joined %s (%d/%d)", player.Name, r.id, len(r.state.Players), maxPlayers)
}

func (r *Room) handleAction(rm *RoomManager, ar actionRequest) {
	c := ar.client
	msg := ar.msg

	switch msg.Type {
	case "player-ready":
		if started := r.state.setReady(c.playerID); started {
			logf(rm.cfg, "GAMES: Game started in %s with %d players", r.id, len(r.state.Players))
		}
		r.persist(rm)
		r.broadcast(GameUpdateMessage{Type: "game-update", GameState: r.state})

	case "roll-dice":
		value := rm.dice.roll()
		if err := r.state.applyRoll(c.playerID, value); err != nil {
			r.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
			return
		}
		r.persist(rm)
		r.broadcast(DiceRolledMessage{
			Type:      "dice-rolled",
			PlayerID:  c.playerID,
			DiceValue: value,
			GameState: r.state,
		})

	case "move-token":
		tokenIndex := -1
		if msg.TokenIndex != nil {
			tokenIndex = *msg.TokenIndex
		}
		result, err := r.state.applyMove(c.playerID, tokenIndex)
		if err != nil {
			r.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
			return
		}
		r.persist(rm)
		r.broadcast(TokenMovedMessage{
			Type:       "token-moved",
			PlayerID:   result.PlayerID,
			TokenIndex: result.TokenIndex,
			Token:      result.Token,
			Captured:   result.Captured,
			GameState:  r.state,
		})
		if result.Won {
			logf(rm.cfg, "GAMES: %s won in %s", c.playerID, r.id)
		}

	case "pass-turn":
		if err := r.state.passTurn(c.playerID); err != nil {
			r.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
			return
		}
		r.persist(rm)
		r.broadcast(GameUpdateMessage{Type: "game-update", GameState: r.state})

	case "send-chat":
		player := r.state.playerByID(c.playerID)
		if player == nil || msg.Message == "" {
			return
		}
		chat := ChatMessage{
			PlayerID:    c.playerID,
			PlayerName:  player.Name,
			PlayerColor: player.Color,
			Message:     msg.Message,
			Timestamp:   time.Now().UnixMilli(),
		}
		r.chat = append(r.chat, chat)
		if rm.store != nil {
			if err := rm.store.AppendChat(r.id, chat); err != nil {
				logf(rm.cfg, "STORE: Chat mirror for %s failed: %v", r.id, err)
			}
		}
		r.broadcast(NewChatMessage{Type: "new-chat", ChatMessage: chat})

	case "get-game-state":
		r.sendTo(c, GameStateMessage{Type: "game-state", GameState: r.state})
	}
}

// handleLeave removes a player and reports whether the room emptied and
// the loop should stop.
func (r *Room) handleLeave(rm *RoomManager, lr leaveRequest) bool {
	c := lr.client

	delete(r.clients, c)
	if lr.gone {
		// Sole closer for a client that reached a room: the read pump
		// submits exactly one gone-leave, even after a slow-drop already
		// removed the client from the map.
		close(c.send)
	}

	if !r.state.removePlayer(c.playerID) {
		return false
	}

	if len(r.state.Players) == 0 {
		rm.deleteRoom(r.id)
		logf(rm.cfg, "GAMES: Room deleted: %s", r.id)
		return true
	}

	r.persist(rm)
	r.broadcast(PlayerLeftMessage{
		Type:      "player-left",
		PlayerID:  c.playerID,
		GameState: r.state,
		Message:   "A player left the game",
	})
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomManager holds the authoritative in-memory room index, keyed by
// room code.
type RoomManager struct {
	cfg   *Config
	store *MirrorStore
	dice  *diceRoller

	mu    sync.Mutex
	rooms map[string]*Room
}

func newRoomManager(cfg *Config, store *MirrorStore) *RoomManager {
	rm := &RoomManager{
		cfg:   cfg,
		store: store,
		dice:  newDefaultDiceRoller(),
		rooms: make(map[string]*Room),
	}

	// Seed from the mirror after a restart. Restored rooms come back
	// with no live connections and are reaped if nobody returns.
	if store != nil {
		for _, g := range store.LoadGames() {
			room := newRoom(g.RoomID, g)
			rm.rooms[g.RoomID] = room
			go room.run(rm)
			logf(cfg, "GAMES: Restored room %s from mirror", g.RoomID)
		}
	}

	return rm
}

func (rm *RoomManager) createRoom(c *Client, playerName string) *Room {
	rm.mu.Lock()
	id := rm.newRoomCodeLocked()
	room := newRoom(id, newGameState(id, c.playerID, playerName))
	room.clients[c] = true
	rm.rooms[id] = room
	rm.mu.Unlock()

	room.persist(rm)

	c.send <- RoomCreatedMessage{
		Type:        "room-created",
		RoomID:      id,
		GameState:   room.state,
		PlayerID:    c.playerID,
		PlayerColor: room.state.Players[0].Color,
	}

	go room.run(rm)

	logf(rm.cfg, "GAMES: Room created: %s by %q", id, room.state.Players[0].Name)
	return room
}

func (rm *RoomManager) getRoom(id string) (*Room, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[id]
	return room, ok
}

// deleteRoom drops a room from the index and the mirror. The done
// channel is closed only if this call actually removed it, so a leave
// and the reaper cannot both close it.
func (rm *RoomManager) deleteRoom(id string) {
	rm.mu.Lock()
	room, ok := rm.rooms[id]
	if ok {
		delete(rm.rooms, id)
	}
	rm.mu.Unlock()

	if !ok {
		return
	}

	close(room.done)

	if rm.store != nil {
		if err := rm.store.DeleteRoom(id); err != nil {
			logf(rm.cfg, "STORE: Mirror delete for %s failed: %v", id, err)
		}
	}
}

func (rm *RoomManager) roomCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return len(rm.rooms)
}

func (rm *RoomManager) roomIDs() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	ids := make([]string, 0, len(rm.rooms))
	for id := range rm.rooms {
		ids = append(ids, id)
	}
	return ids
}

// newRoomCodeLocked generates a 6-char room code and ensures it doesn't
// collide with a live room. Caller holds rm.mu.
func (rm *RoomManager) newRoomCodeLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := rm.rooms[id]; !exists {
			return id
		}
	}
}

// startReaper periodically removes rooms idle longer than idleTimeout.
func (rm *RoomManager) startReaper(idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(idleTimeout / 2)
		for range ticker.C {
			cutoff := time.Now().Add(-idleTimeout)

			for _, id := range rm.roomIDs() {
				room, ok := rm.getRoom(id)
				if !ok {
					continue
				}

				room.mu.RLock()
				last := room.lastActive
				room.mu.RUnlock()

				if last.Before(cutoff) {
					rm.deleteRoom(id)
					logf(rm.cfg, "GAMES: Reaped idle room %s", id)
				}
			}
		}
	}()
}

// serveWS upgrades the connection and pumps messages. Every connection
// gets a fresh player id; it stays stable until the socket closes.
func serveWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: uuid.NewString(),
		}

		go client.writePump()
		client.readPump(cfg, rm)
	}
}

func (c *Client) readPump(cfg *Config, rm *RoomManager) {
	defer func() {
		if r := c.room; r != nil {
			select {
			case r.leaves <- leaveRequest{client: c, gone: true}:
			case <-r.done:
				close(c.send)
			}
		} else {
			close(c.send)
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "create-room":
			if c.room != nil {
				c.sendDirect(ErrorMessage{Type: "error", Message: "already in a room"})
				continue
			}
			c.room = rm.createRoom(c, msg.PlayerName)

		case "join-room":
			if c.room != nil {
				c.sendDirect(ErrorMessage{Type: "error", Message: "already in a room"})
				continue
			}
			room, ok := rm.getRoom(msg.RoomID)
			if !ok {
				c.sendDirect(ErrorMessage{Type: "error", Message: errRoomNotFound.Error()})
				continue
			}
			seated := make(chan *Player, 1)
			select {
			case room.joins <- joinRequest{client: c, name: msg.PlayerName, seated: seated}:
				if <-seated != nil {
					c.room = room
				}
			case <-room.done:
				c.sendDirect(ErrorMessage{Type: "error", Message: errRoomNotFound.Error()})
			}

		case "leave-room":
			if c.room == nil {
				continue
			}
			select {
			case c.room.leaves <- leaveRequest{client: c}:
			case <-c.room.done:
			}
			c.room = nil

		case "player-ready", "roll-dice", "move-token", "pass-turn", "send-chat", "get-game-state":
			if c.room == nil {
				c.sendDirect(ErrorMessage{Type: "error", Message: errRoomNotFound.Error()})
				continue
			}
			select {
			case c.room.acts <- actionRequest{client: c, msg: msg}:
			case <-c.room.done:
			}

		default:
			// ignore unknown types
		}
	}
}

// sendDirect is for messages sent outside any room's run loop.
func (c *Client) sendDirect(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
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

	// We are at /ludo/:roomid/qr; strip trailing "/qr" to get the room URL.
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

// ---- Static file paths ----

//go:embed ludo/index.html
var indexHTML []byte

//go:embed ludo/app.css
var ludoCSS []byte

//go:embed ludo/app.js
var ludoJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(ludoCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(ludoJS)
	}
}

// registerLudoGame sets up routes so that:
//   - $path              → HTML client (create a room in-page)
//   - $path/:roomid      → HTML client, auto-joining that room
//   - $path/:roomid/qr   → PNG QR code for that room URL
//   - /ws                → WebSocket carrying all game events
func registerLudoGame(cfg *Config, path string, mux *httprouter.Router, rm *RoomManager) {
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:roomid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)

	// Shared assets (no roomid in route)
	mux.GET(cfg.prefix+"/assets/ludo/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/ludo/app.js", getJsHandler(cfg))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, rm))
}
