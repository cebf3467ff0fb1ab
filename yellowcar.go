/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Yellow Car
//
// Everyone in the car joins one game on their phone. Whoever spots a yellow
// car taps their name and scores a point; every device sees the new score at
// once. A point can be challenged for a few seconds after it lands, and the
// players then vote on it. A rejected point is taken back.
//
// Features:
// - WebSockets per game ID: /game/:gameid and /game/:gameid/ws
// - Every committed change is pushed to all devices as a full snapshot
// - Errors are sent only to the device that caused them
// - Devices identified by cookie, which keys their personal stats
// - Achievement notices on score milestones, to the scoring device
// - Post-game fairness ratings, shown as averages only
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with store-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type         string         `json:"type"`                    // "point", "challenge", "vote", "end_game", "rate"
	PlayerID     string         `json:"player_id,omitempty"`     // point scorer / accused / rater
	EventID      string         `json:"event_id,omitempty"`      // challenge
	ChallengerID string         `json:"challenger_id,omitempty"` // challenge
	ChallengeID  string         `json:"challenge_id,omitempty"`  // vote
	VoterID      string         `json:"voter_id,omitempty"`      // vote
	Vote         string         `json:"vote,omitempty"`          // vote: "yes" or "no"
	Ratings      map[string]int `json:"ratings,omitempty"`       // rate: player id -> 1..5
}

// RatingView is a player's rating without who gave what.
type RatingView struct {
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name"`
	Average    float64 `json:"average_rating"`
	Count      int     `json:"count"`
}

// SnapshotMessage is broadcast to every client after each change.
type SnapshotMessage struct {
	Type            string                   `json:"type"` // "snapshot"
	Seq             uint64                   `json:"seq"`
	Game            yellowcar.Game           `json:"game"`
	Standings       []yellowcar.Player       `json:"standings"`
	Events          []yellowcar.ScoringEvent `json:"events"`
	Challenge       *yellowcar.Challenge     `json:"challenge,omitempty"`
	ChallengeActive bool                     `json:"challenge_active"`
	Ratings         []RatingView             `json:"ratings"`
	Raters          []string                 `json:"raters"` // player ids that already rated
}

// AchievementMessage is sent to the client that reached a milestone.
type AchievementMessage struct {
	Type       string `json:"type"` // "achievement"
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	yellowcar.Achievement
}

// ErrorMessage is sent only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newSnapshotMessage(snap yellowcar.Snapshot) SnapshotMessage {
	msg := SnapshotMessage{
		Type:            "snapshot",
		Seq:             snap.Seq,
		Game:            snap.Game,
		Standings:       snap.Game.Standings(),
		Events:          snap.Events,
		Challenge:       snap.Challenge,
		ChallengeActive: snap.ChallengeActive,
		Ratings:         make([]RatingView, 0, len(snap.Ratings)),
		Raters:          []string{},
	}
	if msg.Events == nil {
		msg.Events = []yellowcar.ScoringEvent{}
	}

	raters := make(map[string]bool)
	for _, r := range snap.Ratings {
		msg.Ratings = append(msg.Ratings, RatingView{
			PlayerID:   r.PlayerID,
			PlayerName: r.PlayerName,
			Average:    r.Average,
			Count:      len(r.RatedBy),
		})
		for _, id := range r.RatedBy {
			raters[id] = true
		}
	}
	sort.Slice(msg.Ratings, func(i, j int) bool { return msg.Ratings[i].PlayerID < msg.Ratings[j].PlayerID })

	for id := range raters {
		msg.Raters = append(msg.Raters, id)
	}
	sort.Strings(msg.Raters)

	return msg
}

func newErrorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Code:    errorCode(err),
		Message: err.Error(),
	}
}

type Client struct {
	conn      *websocket.Conn
	send      chan any
	profileID string
}

type directMessage struct {
	client *Client
	msg    any
}

type Hub struct {
	id  string
	svc *yellowcar.Service

	clients map[*Client]bool
	last    *SnapshotMessage

	register chan *Client
	unreg    chan *Client
	direct   chan directMessage

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	lastActive time.Time
	profiles   map[string]bool // every device that joined, for stats at game end
}

func newHub(ctx context.Context, gameID string, svc *yellowcar.Service) *Hub {
	ctx, cancel := context.WithCancel(ctx)

	return &Hub{
		id:         gameID,
		svc:        svc,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		direct:     make(chan directMessage),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		lastActive: time.Now(),
		profiles:   make(map[string]bool),
	}
}

func (h *Hub) run(cfg *Config) {
	defer close(h.done)
	defer h.closeAll()

	snaps, stop, err := h.svc.Subscribe(h.ctx, h.id)
	if err != nil {
		cfg.logger().Error("subscribe to game", "game", h.id, "error", err)

		return
	}
	defer stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.touch()
			h.addProfile(c.profileID)

			h.clients[c] = true
			if h.last != nil {
				h.trySend(c, *h.last)
			}

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case snap, ok := <-snaps:
			if !ok {
				return
			}
			msg := newSnapshotMessage(snap)
			h.last = &msg
			for c := range h.clients {
				h.trySend(c, msg)
			}

		case dm := <-h.direct:
			if h.clients[dm.client] {
				h.trySend(dm.client, dm.msg)
			}
		}
	}
}

// trySend drops a client whose buffer is full rather than stalling the hub.
func (h *Hub) trySend(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

func (h *Hub) reply(c *Client, msg any) {
	select {
	case h.direct <- directMessage{client: c, msg: msg}:
	case <-h.done:
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActive
}

// addProfile remembers a device that played in this game, so its stats are
// settled when the game ends.
func (h *Hub) addProfile(id string) {
	if id == "" {
		return
	}
	h.mu.Lock()
	h.profiles[id] = true
	h.mu.Unlock()
}

func (h *Hub) profileIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.profiles))
	for id := range h.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// handle runs one client request against the game and answers errors to
// that client alone. State changes reach everyone through the feed.
func (h *Hub) handle(cfg *Config, c *Client, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(h.ctx, timeout)
	defer cancel()

	var err error

	switch msg.Type {
	case "point":
		var res yellowcar.PointResult
		res, err = h.svc.AddPoint(ctx, h.id, msg.PlayerID, c.profileID)
		if err == nil {
			logf(cfg, "GAMES: %s scored in %s (now %d)", res.Event.PlayerName, h.id, res.Score)

			if res.Achievement != nil {
				h.reply(c, AchievementMessage{
					Type:        "achievement",
					PlayerID:    res.Event.PlayerID,
					PlayerName:  res.Event.PlayerName,
					Achievement: *res.Achievement,
				})
			}
		}

	case "challenge":
		var ch yellowcar.Challenge
		ch, err = h.svc.Disputes.CreateChallenge(ctx, yellowcar.ChallengeRequest{
			GameID:       h.id,
			EventID:      msg.EventID,
			PlayerID:     msg.PlayerID,
			ChallengerID: msg.ChallengerID,
		})
		if err == nil {
			logf(cfg, "GAMES: %s challenged %s's point in %s", ch.ChallengerName, ch.PlayerName, h.id)
		}

	case "vote":
		var out *yellowcar.Outcome
		out, err = h.svc.Disputes.Vote(ctx, h.id, msg.ChallengeID, msg.VoterID, yellowcar.Vote(msg.Vote))
		if err == nil && out != nil {
			logf(cfg, "GAMES: Challenge %s in %s %s by vote", out.ChallengeID, h.id, out.Status)
		}

	case "end_game":
		_, err = h.svc.EndGame(ctx, h.id, h.profileIDs()...)
		if err == nil {
			logf(cfg, "GAMES: Game %s finished", h.id)
		}

	case "rate":
		_, err = h.svc.Ratings.Submit(ctx, h.id, msg.PlayerID, msg.Ratings)

	default:
		err = yellowcar.ErrInvalid
	}

	if err != nil {
		h.reply(c, newErrorMessage(err))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const profileCookieName = "yellowcar_id"

func getOrSetProfileID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(profileCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     profileCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a hub per live game, so each $path/$gameid is its own
// broadcast group over the shared service.
type GameManager struct {
	ctx context.Context
	cfg *Config
	svc *yellowcar.Service

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, cfg *Config, svc *yellowcar.Service) *GameManager {
	gm := &GameManager{
		ctx:         ctx,
		cfg:         cfg,
		svc:         svc,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		select {
		case <-hub.done:
		default:
			return hub
		}
	}

	hub := newHub(gm.ctx, gameID, gm.svc)
	gm.hubs[gameID] = hub
	go hub.run(gm.cfg)
	return hub
}

// touch marks a game active without requiring a websocket and records the
// device that acted in it.
func (gm *GameManager) touch(gameID, profileID string) {
	hub := gm.getHub(gameID)
	hub.addProfile(profileID)
	hub.touch()
}

// reaperLoop periodically closes hubs that have been idle longer than
// idleTimeout and releases their in-process game state.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			if hub.idleSince().Before(cutoff) {
				delete(gm.hubs, id)
				hub.cancel()
				gm.svc.Forget(id)

				logf(gm.cfg, "GAMES: Reaped idle game %s", id)
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if _, err := gm.svc.Ledger.Game(r.Context(), gameID); err != nil {
			http.Error(w, errorCode(err), statusFor(err))
			return
		}

		profileID := getOrSetProfileID(w, r)

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.logger().Warn("websocket upgrade", "game", gameID, "error", err)
			return
		}

		client := &Client{
			conn:      conn,
			send:      make(chan any, 16),
			profileID: profileID,
		}

		if !hub.join(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(cfg, hub)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.touch()
		h.handle(cfg, c, msg)
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

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

//go:embed yellowcar/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config, svc *yellowcar.Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := svc.Ledger.Game(r.Context(), ps.ByName("gameid")); err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(statusFor(err))

			_, _ = w.Write([]byte(newPage("Game not found", "That game does not exist. Start a new one?")))

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetProfileID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

// createGame handles the home page form: one "name" field per player.
func createGame(cfg *Config, path string, svc *yellowcar.Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		game, err := svc.Ledger.CreateGame(r.Context(), r.PostForm["name"])
		if err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(statusFor(err))

			_, _ = w.Write([]byte(newPage("Cannot start game",
				"A game needs between 2 and 8 players with names. Go back and try again.")))

			return
		}

		logf(cfg, "GAMES: Created game %s/%s with %d players", path, game.ID, len(game.Players))

		http.Redirect(w, r, cfg.prefix+path+"/"+game.ID, http.StatusSeeOther)
	}
}

// registerYellowCarGame sets up routes so that:
//   - POST $path              → creates a game and redirects to it
//   - $path/:gameid           → HTML client
//   - $path/:gameid/ws        → WebSocket for that game
//   - $path/:gameid/qr        → PNG QR code for that game URL
func registerYellowCarGame(ctx context.Context, cfg *Config, path string, svc *yellowcar.Service, mux *httprouter.Router) *GameManager {
	gm := newGameManager(ctx, cfg, svc)

	mux.POST(cfg.prefix+path, createGame(cfg, path, svc))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg, svc))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return gm
}
