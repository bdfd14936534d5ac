package models

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string. Ids generated by this
// process sort in creation order and never collide within a millisecond.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
