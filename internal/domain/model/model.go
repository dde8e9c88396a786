// Package model contains domain models passed between layers.
package model

import "time"

// DefaultMode tags score events submitted without an explicit game mode.
const DefaultMode = "normal"

// Player is a participant. Name is unique and never changes after registration.
type Player struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreEvent is one accepted submission. Events are append-only.
type ScoreEvent struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"player_id"`
	Delta     int64     `json:"delta"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// Aggregate is a player's running total: the sum of the deltas of all their events.
type Aggregate struct {
	PlayerID  int64     `json:"player_id"`
	Total     int64     `json:"total_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one leaderboard row.
type Entry struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Total    int64  `json:"total_score"`
}

// Standing is a player's position on the leaderboard.
type Standing struct {
	PlayerID int64 `json:"player_id"`
	Rank     int64 `json:"rank"`
	Total    int64 `json:"total_score"`
}

// Snapshot is a materialised top-of-board, tagged with the ranking
// generation that was current when its store read started.
//
// Generations are per process; Origin names the process that built the
// snapshot. ReadAt is taken before the store read.
type Snapshot struct {
	Generation uint64    `json:"generation"`
	Origin     string    `json:"origin"`
	Entries    []Entry   `json:"entries"`
	Complete   bool      `json:"complete"` // holds every ranked player
	ReadAt     time.Time `json:"read_at"`
}

// Before reports whether a ranks ahead of b: higher total first, then lower player id.
func Before(a, b Entry) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	return a.PlayerID < b.PlayerID
}

// Covers reports whether s can answer a top-n query.
func (s Snapshot) Covers(n int) bool {
	return s.Complete || len(s.Entries) >= n
}

// Head returns the first n entries (all of them if fewer).
func (s Snapshot) Head(n int) []Entry {
	if n > len(s.Entries) {
		n = len(s.Entries)
	}
	out := make([]Entry, n)
	copy(out, s.Entries[:n])
	return out
}

// Eviction asks for a remote snapshot key to be dropped after the ranking
// generation moved past Generation.
type Eviction struct {
	Key        string    `json:"key"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}
