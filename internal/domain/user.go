package domain

import "time"

// User is an opaque account row. The station only needs the identifier;
// profile, credentials and sessions live outside this service.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}
