package models

import "time"

// Account is a registered user together with its verification sub-state
// and embedded inbox. Messages are owned exclusively by the account and
// are only ever touched through account-scoped storage operations.
type Account struct {
	ID          int64
	Username    string
	Email       string
	PassHash    []byte
	VerifyCode  string    // empty once verified
	CodeExpiry  time.Time // zero once verified
	IsVerified  bool
	IsAccepting bool
	Messages    []Message
}

// Message is one anonymous note. It carries no sender identity at all.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailMessage is the payload published to the mail queue.
type EmailMessage struct {
	Email    string `json:"to"`
	Username string `json:"username"`
	Code     string `json:"code"`
	Subject  string `json:"subject"`
}

// Identity is what a session token carries about the authenticated user.
type Identity struct {
	ID          int64
	Username    string
	IsVerified  bool
	IsAccepting bool
}
