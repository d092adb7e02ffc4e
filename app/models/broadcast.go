package models

import "time"

// BroadcastState is the lifecycle of a broadcast.
type BroadcastState string

const (
	BroadcastQueued  BroadcastState = "queued"
	BroadcastRunning BroadcastState = "running"
	BroadcastDone    BroadcastState = "done"
	BroadcastFailed  BroadcastState = "failed"
)

// Broadcast is one admin message fanned out to every user.
type Broadcast struct {
	ID          string         `bson:"_id" json:"id"`
	Text        string         `bson:"text" json:"text"`
	RequestedBy int64          `bson:"requested_by" json:"requested_by"`
	State       BroadcastState `bson:"state" json:"state"`
	Total       int64          `bson:"total" json:"total"`
	Sent        int64          `bson:"sent" json:"sent"`
	Failed      int64          `bson:"failed" json:"failed"`
	Blocked     int64          `bson:"blocked" json:"blocked"`
	Error       string         `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
	StartedAt   *time.Time     `bson:"started_at,omitempty" json:"started_at,omitempty"`
	FinishedAt  *time.Time     `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// BroadcastResult accumulates per-recipient outcomes.
type BroadcastResult struct {
	Total   int64
	Sent    int64
	Failed  int64
	Blocked int64
}
