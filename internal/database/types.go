package database

import "time"

type LeaderboardEntry struct {
	Wallet    string    `db:"wallet" json:"wallet"`
	Score     int64     `db:"score" json:"score"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
