package model

import "time"

// User summarizes one known user's log resource.
type User struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}
