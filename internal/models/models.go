package models

import "time"

// User is a chat-platform user. ID is the platform's own identifier.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Favorite links a user to a movie they saved.
type Favorite struct {
	UserID  string    `json:"userId"`
	MovieID string    `json:"movieId"`
	AddedAt time.Time `json:"addedAt"`
}

// MovieStat counts how often a movie was shown to a user in search results.
type MovieStat struct {
	UserID      string    `json:"userId"`
	MovieID     string    `json:"movieId"`
	Title       string    `json:"title"`
	TimesShown  int       `json:"timesShown"`
	LastShownAt time.Time `json:"lastShownAt"`
}
