/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package yellowcar holds the scoring and dispute rules for the yellow car
// game: the score ledger, the per-player cooldown, challenges with voting,
// post-game ratings, personal stats and the per-game change feed.
package yellowcar

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinPlayers    = 2
	MaxPlayers    = 8
	MaxNameLength = 20

	// EventLimit is how many scoring events a snapshot carries.
	EventLimit = 50
)

// Palette is cycled by join order when colouring players.
var Palette = []string{
	"#FFD700",
	"#FFA500",
	"#FFEB3B",
	"#F59E0B",
	"#FFB800",
	"#FFDB58",
	"#FFC107",
	"#FFAA00",
}

type Status string

const (
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

type Game struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Status     Status             `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	Players    map[string]*Player `json:"players"`
}

// Clone returns a deep copy, so callers never share player pointers with a store.
func (g Game) Clone() Game {
	out := g
	out.Players = make(map[string]*Player, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		out.Players[id] = &cp
	}
	return out
}

// Roster returns the players in join order.
func (g Game) Roster() []Player {
	out := make([]Player, 0, len(g.Players))
	for _, p := range g.Players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Standings returns the players ordered by score, highest first, ties kept
// in join order.
func (g Game) Standings() []Player {
	out := g.Roster()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Placement is the dense rank of the named player in the standings, or 0
// when nobody by that name played.
func (g Game) Placement(name string) int {
	place, last := 0, -1
	for _, p := range g.Standings() {
		if p.Score != last {
			place++
			last = p.Score
		}
		if p.Name == name {
			return place
		}
	}
	return 0
}

type EventKind string

const KindPointAdded EventKind = "point_added"

type ScoringEvent struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       EventKind `json:"type"`
}

type Vote string

const (
	VoteYes Vote = "yes"
	VoteNo  Vote = "no"
)

func (v Vote) valid() bool {
	return v == VoteYes || v == VoteNo
}

type ChallengeStatus string

const (
	ChallengeVoting   ChallengeStatus = "voting"
	ChallengeApproved ChallengeStatus = "approved"
	ChallengeRejected ChallengeStatus = "rejected"
)

type Challenge struct {
	ID             string          `json:"id"`
	GameID         string          `json:"game_id"`
	EventID        string          `json:"event_id"`
	PlayerID       string          `json:"player_id"`
	PlayerName     string          `json:"player_name"`
	ChallengerID   string          `json:"challenged_by"`
	ChallengerName string          `json:"challenged_by_name"`
	Votes          map[string]Vote `json:"votes"`
	Status         ChallengeStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ResolvedAt     time.Time       `json:"resolved_at,omitzero"`
}

// Active reports whether the challenge is still collecting votes at now.
func (c Challenge) Active(now time.Time) bool {
	return c.Status == ChallengeVoting && now.Before(c.ExpiresAt)
}

// Tally counts yes and no votes.
func (c Challenge) Tally() (yes, no int) {
	for _, v := range c.Votes {
		switch v {
		case VoteYes:
			yes++
		case VoteNo:
			no++
		}
	}
	return yes, no
}

// Verdict applies the strict majority rule: only more yes than no votes
// approves. Ties and empty ballots reject.
func (c Challenge) Verdict() ChallengeStatus {
	yes, no := c.Tally()
	if yes > no {
		return ChallengeApproved
	}
	return ChallengeRejected
}

func (c Challenge) clone() Challenge {
	out := c
	out.Votes = make(map[string]Vote, len(c.Votes))
	for k, v := range c.Votes {
		out.Votes[k] = v
	}
	return out
}

type PlayerRating struct {
	GameID     string         `json:"game_id"`
	PlayerID   string         `json:"player_id"`
	PlayerName string         `json:"player_name"`
	Ratings    map[string]int `json:"ratings"`
	RatedBy    []string       `json:"rated_by"`
	Average    float64        `json:"average_rating"`
}

func (r PlayerRating) hasRater(id string) bool {
	for _, rater := range r.RatedBy {
		if rater == id {
			return true
		}
	}
	return false
}

func (r PlayerRating) clone() PlayerRating {
	out := r
	out.Ratings = make(map[string]int, len(r.Ratings))
	for k, v := range r.Ratings {
		out.Ratings[k] = v
	}
	out.RatedBy = append([]string(nil), r.RatedBy...)
	return out
}

// SanitizeName trims a display name, strips angle brackets and caps it at
// MaxNameLength characters.
func SanitizeName(name string) string {
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	return strings.TrimSpace(name)
}
