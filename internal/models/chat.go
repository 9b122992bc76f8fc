package models

import "time"

const (
	ThreadDirect = "direct"
	ThreadGroup  = "group"
)

const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindVideo  = "video"
	MessageKindAudio  = "audio"
	MessageKindFile   = "file"
	MessageKindSystem = "system"
)

// Conversation is a direct two-participant thread. ParticipantA/ParticipantB
// hold the canonical (lower, higher) ordering of the pair; the unique index on
// that ordering is what makes get-or-create race-free.
type Conversation struct {
	ID            int64      `json:"id"`
	ParticipantA  int64      `json:"participant_a"`
	ParticipantB  int64      `json:"participant_b"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadA       int        `json:"-"`
	UnreadB       int        `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Peer returns the other participant of the pair.
func (c *Conversation) Peer(userID int64) int64 {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// UnreadFor returns the stored unread counter for one participant.
func (c *Conversation) UnreadFor(userID int64) int {
	if c.ParticipantA == userID {
		return c.UnreadA
	}
	return c.UnreadB
}

type ConversationSummary struct {
	Conversation
	PeerID      int64 `json:"peer_id"`
	UnreadCount int   `json:"unread_count"`
}

// Message is one entry in a thread's log. SenderID is nil for system messages.
// CreatedAt is assigned by the database at accept time and is the ordering
// authority for all consumers.
type Message struct {
	ID              int64           `json:"id"`
	ThreadType      string          `json:"thread_type"`
	ThreadID        int64           `json:"thread_id"`
	SenderID        *int64          `json:"sender_id"`
	Kind            string          `json:"kind"`
	Content         string          `json:"content"`
	FileName        *string         `json:"file_name,omitempty"`
	FileSize        *int64          `json:"file_size,omitempty"`
	ReplyToID       *int64          `json:"reply_to_id,omitempty"`
	Reply           *MessagePreview `json:"reply,omitempty"`
	ForwardedFromID *int64          `json:"forwarded_from_id,omitempty"`
	ForwardedSender *int64          `json:"forwarded_sender_id,omitempty"`
	ReadBy          []int64         `json:"read_by"`
	Edited          bool            `json:"edited"`
	EditedAt        *time.Time      `json:"edited_at,omitempty"`
	Deleted         bool            `json:"deleted"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MessagePreview is the lightweight projection of a referenced message shown
// with replies. Available is false when the referent was deleted or is gone,
// in which case the preview is a placeholder rather than an error.
type MessagePreview struct {
	MessageID int64  `json:"message_id"`
	SenderID  *int64 `json:"sender_id,omitempty"`
	Content   string `json:"content"`
	Available bool   `json:"available"`
}
