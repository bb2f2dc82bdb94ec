package model

import "time"

// User is the internal record for a participant known by an external
// identity-provider id.
type User struct {
	ID         int       `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}
