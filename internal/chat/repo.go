package chat

import (
	"context"
	"errors"
	"time"

	"github.com/healthlink/healthlink-backend/internal/models"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetConversationByID(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) getConversationByPairing(ctx context.Context, appointmentID, patientID, doctorID uint64) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("appointment_id = ? AND patient_id = ? AND doctor_id = ?", appointmentID, patientID, doctorID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertOrGetConversation tries to create the conversation; if the pairing
// already exists (including a concurrent insert winning the race), it returns
// the existing row instead. The unique index on (appointment_id, patient_id,
// doctor_id) is what makes this safe across processes.
func (r *Repo) InsertOrGetConversation(ctx context.Context, c *Conversation) (*Conversation, bool, error) {
	if existing, err := r.getConversationByPairing(ctx, c.AppointmentID, c.PatientID, c.DoctorID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	err := r.db.WithContext(ctx).Create(c).Error
	if err == nil {
		return c, true, nil
	}

	// Duplicate insert: someone else created the pairing between our lookup
	// and our insert. Re-fetch and return theirs.
	existing, getErr := r.getConversationByPairing(ctx, c.AppointmentID, c.PatientID, c.DoctorID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func (r *Repo) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		Update("last_activity_at", at).Error
}

// ListConversationsForProfile returns the caller's conversations, most
// recently active first.
func (r *Repo) ListConversationsForProfile(ctx context.Context, role models.Role, profileID uint64) ([]Conversation, error) {
	q := r.db.WithContext(ctx).Order("last_activity_at DESC")
	if role == models.RolePatient {
		q = q.Where("patient_id = ?", profileID)
	} else {
		q = q.Where("doctor_id = ?", profileID)
	}

	var convs []Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessagesAsc returns the full log in ascending id order.
func (r *Repo) ListMessagesAsc(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// LastMessage returns the newest message or nil when the log is empty.
func (r *Repo) LastMessage(ctx context.Context, conversationID string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetAppointment(ctx context.Context, id uint64) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
