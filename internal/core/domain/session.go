package domain

import "time"

// SessionToken is a signed, stateless credential returned after authentication.
type SessionToken struct {
	Value     string
	ExpiresAt time.Time
}

// Notification carries a rendered outbound message.
type Notification struct {
	To      string
	Subject string
	HTML    string
	Text    string
}
