/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
	"github.com/gorilla/websocket"
)

type wireMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Title     string `json:"title"`
	Standings []struct {
		ID    string `json:"id"`
		Score int    `json:"score"`
	} `json:"standings"`
}

func dialGame(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/" + gameID + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil returns the first message for which match is true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireMessage) bool) wireMessage {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wireMessage
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func scoreOf(msg wireMessage, playerID string) int {
	for _, p := range msg.Standings {
		if p.ID == playerID {
			return p.Score
		}
	}
	return -1
}

func TestWebsocketScoresAndErrors(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	game := createTestGame(t, h)
	scorer := dialGame(t, srv, game.ID)
	watcher := dialGame(t, srv, game.ID)

	readUntil(t, scorer, func(m wireMessage) bool { return m.Type == "snapshot" })
	readUntil(t, watcher, func(m wireMessage) bool { return m.Type == "snapshot" })

	if err := scorer.WriteJSON(ClientMessage{Type: "point", PlayerID: "player_2"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readUntil(t, watcher, func(m wireMessage) bool {
		return m.Type == "snapshot" && scoreOf(m, "player_2") == 1
	})
	if got.Standings[0].ID != "player_2" {
		t.Fatalf("leader = %s, want player_2", got.Standings[0].ID)
	}
	readUntil(t, scorer, func(m wireMessage) bool { return m.Type == "achievement" })

	if err := scorer.WriteJSON(ClientMessage{Type: "point", PlayerID: "player_2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errMsg := readUntil(t, scorer, func(m wireMessage) bool { return m.Type == "error" })
	if errMsg.Code != "too_fast" {
		t.Fatalf("error code = %q, want too_fast", errMsg.Code)
	}

	if err := scorer.WriteJSON(ClientMessage{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errMsg = readUntil(t, scorer, func(m wireMessage) bool { return m.Type == "error" })
	if errMsg.Code != "invalid" {
		t.Fatalf("error code = %q, want invalid", errMsg.Code)
	}
}

func TestWebsocketUnknownGame(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/ZZZZZZZZ/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("dial to unknown game succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %+v, want 404", resp)
	}
}

func TestEndGameSettlesStatsOfHTTPScorer(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	game := createTestGame(t, h)
	cookie := &http.Cookie{Name: profileCookieName, Value: "phone-http"}

	if rec := do(t, h, http.MethodPost, "/api/game/"+game.ID+"/points", `{"player_id":"player_1"}`, cookie); rec.Code != http.StatusCreated {
		t.Fatalf("point status = %d, body %s", rec.Code, rec.Body)
	}

	conn := dialGame(t, srv, game.ID)
	readUntil(t, conn, func(m wireMessage) bool { return m.Type == "snapshot" })
	if err := conn.WriteJSON(ClientMessage{Type: "end_game"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		var summary yellowcar.StatsSummary
		rec := do(t, h, http.MethodGet, "/api/stats", "", cookie)
		if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		if len(summary.Games) == 1 && summary.Games[0].Placement == 1 {
			if summary.Games[0].TotalPlayers != 3 || summary.Wins != 1 {
				t.Fatalf("summary = %+v", summary)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats never settled: %+v", summary)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
