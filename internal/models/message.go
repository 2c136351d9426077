package models

import "time"

type MessageDirection string

const (
	DirectionOutbound MessageDirection = "out" // manifest -> pilot
	DirectionInbound  MessageDirection = "in"  // pilot -> manifest
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusReceived  MessageStatus = "received"
)

// Message is one entry in the append-only ledger. The id is assigned by the
// store, strictly increasing per ledger instance. Text is immutable after
// creation; only Status changes afterwards.
type Message struct {
	ID        int64            `json:"id"`
	Direction MessageDirection `json:"direction"`
	Text      string           `json:"text"`
	Status    MessageStatus    `json:"status"`
	RemoteID  *string          `json:"remote_id,omitempty"`
	Timestamp time.Time        `json:"ts"`
}
