package domain

import "time"

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is a private thread between a client and an advisor. AdvisorID
// stays empty until an advisor first replies.
type Conversation struct {
	ID        string
	ClientID  string
	AdvisorID string
	Subject   string
	Status    ConversationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}
