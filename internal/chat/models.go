package chat

import "time"

// Conversation is the at-most-one pairing of a patient, a doctor and an
// appointment. The composite unique index is the enforcement point for the
// pairing invariant: concurrent ensure calls race to insert and the loser
// re-fetches the winner's row (see Repo.InsertOrGetConversation).
type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	AppointmentID  uint64    `gorm:"not null;index:uniq_conv_pairing,unique,priority:1" json:"appointment_id"`
	PatientID      uint64    `gorm:"not null;index:uniq_conv_pairing,unique,priority:2" json:"patient_id"`
	DoctorID       uint64    `gorm:"not null;index:uniq_conv_pairing,unique,priority:3" json:"doctor_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Message rows are immutable. The auto-increment id is the total order within
// a conversation and the tie-break when timestamps collide.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index" json:"conversation_id"`
	SenderID       uint64    `gorm:"not null;index" json:"sender_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "conversation_messages" }

// ConversationSummary is the read-side join returned by ListConversations.
type ConversationSummary struct {
	Conversation
	CounterpartName string  `json:"counterpart_name"`
	LastMessageBody *string `json:"last_message_body,omitempty"`
}
