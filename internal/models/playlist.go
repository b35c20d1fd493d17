package models

import (
	"time"
)

// Playlist is a named, owned collection of songs. OwnerID never changes.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Song is the subset of catalogue fields the playlist features read.
type Song struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Performer string `json:"performer"`
}

// Activity actions recorded in the playlist song log.
const (
	ActionAdd    = "add"
	ActionDelete = "delete"
)

// Activity is one entry of a playlist's song activity log.
type Activity struct {
	Username string    `json:"username"`
	Title    string    `json:"title"`
	Action   string    `json:"action"`
	Time     time.Time `json:"time"`
}
