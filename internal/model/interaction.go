package model

import "time"

// VoteSentiment is a community vote on a filing.
type VoteSentiment string

const (
	VoteBullish VoteSentiment = "bullish"
	VoteNeutral VoteSentiment = "neutral"
	VoteBearish VoteSentiment = "bearish"
)

// ValidSentiment reports whether s is one of the three vote values.
func ValidSentiment(s VoteSentiment) bool {
	return s == VoteBullish || s == VoteNeutral || s == VoteBearish
}

// VoteCounts aggregates votes per sentiment for one filing.
type VoteCounts struct {
	Bullish int `json:"bullish"`
	Neutral int `json:"neutral"`
	Bearish int `json:"bearish"`
}

// Comment is a user comment on a filing.
type Comment struct {
	ID              string    `json:"id"`
	AccessionNumber string    `json:"accession_number"`
	UserID          string    `json:"user_id"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
}

// WatchlistEntry pins a ticker to a user's watchlist.
type WatchlistEntry struct {
	UserID    string    `json:"user_id"`
	Ticker    string    `json:"ticker"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTier gates API access levels.
type UserTier string

const (
	TierFree UserTier = "free"
	TierPro  UserTier = "pro"
)
