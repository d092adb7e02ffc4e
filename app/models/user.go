package models

import "time"

// User is a Telegram user who has talked to the bot.
type User struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	Blocked   bool      `bson:"blocked" json:"blocked"`
	FirstSeen time.Time `bson:"first_seen" json:"first_seen"`
	LastSeen  time.Time `bson:"last_seen" json:"last_seen"`
	CreatedAt time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// Stats is the aggregate shown by /stats and GET /api/stats.
type Stats struct {
	Users        int64 `json:"users"`
	Files        int64 `json:"files"`
	BlockedUsers int64 `json:"blocked_users"`
}
