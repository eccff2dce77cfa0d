package domain

import "time"

// Revocation marks a refresh token id as spent. It is only meaningful until
// the token would have expired anyway.
type Revocation struct {
	JTI       string
	UID       string
	ExpiresAt time.Time
	RevokedAt time.Time
}
