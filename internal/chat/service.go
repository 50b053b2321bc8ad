package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/identity"
	"github.com/healthlink/healthlink-backend/internal/models"
	"github.com/healthlink/healthlink-backend/internal/relay"
	"gorm.io/gorm"
)

// Service is the conversation registry and message store. It owns all
// authorization decisions for the chat surface; identities come from the
// resolver, never from request bodies.
type Service struct {
	repo  *Repo
	ids   *identity.Resolver
	relay relay.Relay
}

func NewService(repo *Repo, ids *identity.Resolver, r relay.Relay) *Service {
	return &Service{repo: repo, ids: ids, relay: r}
}

// EnsureConversation returns the single conversation for the
// (appointment, patient, doctor) pairing, creating it on first use. Repeated
// and concurrent calls resolve to the same row.
func (s *Service) EnsureConversation(ctx context.Context, requesterUserID, appointmentID, counterpartUserID uint64) (*Conversation, error) {
	if appointmentID == 0 {
		return nil, fmt.Errorf("%w: appointment id required", ErrValidation)
	}

	ident, err := s.ids.Resolve(ctx, requesterUserID)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !ident.Role.Valid() {
		return nil, ErrInvalidRole
	}

	counterpartProfileID, err := s.ids.ProfileID(ctx, counterpartUserID, ident.Role.Counterpart())
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: counterpart profile not found", ErrNotFound)
		}
		return nil, err
	}

	var patientID, doctorID uint64
	if ident.Role == models.RolePatient {
		patientID, doctorID = ident.ProfileID, counterpartProfileID
	} else {
		patientID, doctorID = counterpartProfileID, ident.ProfileID
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: appointment not found", ErrNotFound)
		}
		return nil, err
	}
	if appt.PatientID != patientID || appt.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: appointment belongs to a different pairing", ErrForbidden)
	}
	switch appt.Status {
	case models.AppointmentApproved, models.AppointmentCompleted:
	default:
		return nil, fmt.Errorf("%w: appointment not approved", ErrValidation)
	}

	cid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	conv := &Conversation{
		ConversationID: cid,
		AppointmentID:  appointmentID,
		PatientID:      patientID,
		DoctorID:       doctorID,
		LastActivityAt: now,
	}

	conv, _, err = s.repo.InsertOrGetConversation(ctx, conv)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, most recently active
// first, enriched with the counterpart display name and last message body.
func (s *Service) ListConversations(ctx context.Context, userID uint64) ([]ConversationSummary, error) {
	ident, err := s.ids.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	convs, err := s.repo.ListConversationsForProfile(ctx, ident.Role, ident.ProfileID)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		counterpartProfileID := c.DoctorID
		if ident.Role == models.RoleDoctor {
			counterpartProfileID = c.PatientID
		}
		name, err := s.ids.DisplayNameForProfile(ctx, counterpartProfileID, ident.Role.Counterpart())
		if err != nil {
			return nil, err
		}

		summary := ConversationSummary{Conversation: c, CounterpartName: name}
		last, err := s.repo.LastMessage(ctx, c.ConversationID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			summary.LastMessageBody = &last.Body
		}
		out = append(out, summary)
	}
	return out, nil
}

// Append validates, durably stores, and only then broadcasts a message.
// A publish failure never rolls the append back or fails the send; the store
// is authoritative and other participants recover on their next history load.
func (s *Service) Append(ctx context.Context, userID uint64, conversationID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body required", ErrValidation)
	}

	conv, ident, err := s.authorizeParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: conv.ConversationID,
		SenderID:       userID,
		Body:           body,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.repo.TouchConversation(ctx, conv.ConversationID, msg.CreatedAt); err != nil {
		log.Printf("chat: touch conversation %s failed: %v", conv.ConversationID, err)
	}

	payload := relay.MessagePayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: ident.DisplayName,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
	channel := relay.ChannelForConversation(conv.ConversationID)
	if err := s.relay.Publish(ctx, channel, relay.EventNewMessage, payload); err != nil {
		log.Printf("chat: broadcast failed conversation=%s message=%d err=%v", conv.ConversationID, msg.ID, err)
	}

	return msg, nil
}

// ListMessages returns the full log in ascending id order.
func (s *Service) ListMessages(ctx context.Context, userID uint64, conversationID string) ([]Message, error) {
	conv, _, err := s.authorizeParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessagesAsc(ctx, conv.ConversationID)
}

// AuthorizeParticipant is the membership gate used by the relay
// subscription-auth endpoint before a grant is signed.
func (s *Service) AuthorizeParticipant(ctx context.Context, userID uint64, conversationID string) error {
	_, _, err := s.authorizeParticipant(ctx, userID, conversationID)
	return err
}

func (s *Service) authorizeParticipant(ctx context.Context, userID uint64, conversationID string) (*Conversation, identity.Identity, error) {
	if conversationID == "" {
		return nil, identity.Identity{}, fmt.Errorf("%w: conversation id required", ErrValidation)
	}

	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.Identity{}, fmt.Errorf("%w: conversation not found", ErrNotFound)
		}
		return nil, identity.Identity{}, err
	}

	ident, err := s.ids.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			return nil, identity.Identity{}, ErrUnauthenticated
		}
		return nil, identity.Identity{}, err
	}

	participant := (ident.Role == models.RolePatient && conv.PatientID == ident.ProfileID) ||
		(ident.Role == models.RoleDoctor && conv.DoctorID == ident.ProfileID)
	if !participant {
		return nil, identity.Identity{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return conv, ident, nil
}
