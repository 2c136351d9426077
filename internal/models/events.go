package models

// MessageAck is the acknowledgment payload exchanged on the ack topics in
// both directions: {"for_id": 123, "status": "delivered"|"read"}.
type MessageAck struct {
	ForID  int64         `json:"for_id"`
	Status MessageStatus `json:"status"`
}

// LiftStatusEvent is the pilot's out-of-band lift status update:
// {"id": 7, "status": "completed"}.
type LiftStatusEvent struct {
	ID     int64      `json:"id"`
	Status LiftStatus `json:"status"`
}

// StateSnapshot is the consolidated view served to the operator UI.
type StateSnapshot struct {
	Messages     []Message `json:"messages"`
	Lifts        []Lift    `json:"lifts"`
	QuickReplies []string  `json:"quick"`
}
