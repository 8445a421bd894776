// Package meetings implements the meeting-authorization collaborator: meeting
// creation, join grants with signaling tokens, and host-only termination.
package meetings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/domain"
)

type clock func() time.Time

type Service struct {
	store    Store
	tokenTTL time.Duration
	now      clock
}

func NewService(store Store, tokenTTL time.Duration) *Service {
	return &Service{store: store, tokenTTL: tokenTTL, now: time.Now}
}

// Grant is what a joining user receives; the token is presented as the join
// payload on the signaling channel.
type Grant struct {
	MeetingID      domain.MeetingID   `json:"meetingId"`
	MeetingCode    domain.MeetingCode `json:"meetingCode"`
	SignalingToken string             `json:"signalingToken"`
	Host           domain.Participant `json:"host"`
	IsClassroom    bool               `json:"isClassroomMeeting"`
}

func (s *Service) CreateClassroomMeeting(ctx context.Context, classroomID string, host domain.Participant, title string) (*domain.Meeting, error) {
	m := &domain.Meeting{
		ID:          domain.NewMeetingID(),
		Code:        domain.NewMeetingCode(),
		Title:       title,
		ClassroomID: classroomID,
		Host:        host,
		Active:      true,
		CreatedAt:   s.now(),
		IsClassroom: true,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create classroom meeting: %w", err)
	}
	log.Info().Str("module", "meetings").
		Str("meeting_id", string(m.ID)).Str("code", string(m.Code)).
		Str("classroom", classroomID).Msg("classroom meeting created")
	return m, nil
}

func (s *Service) CreateNormalMeeting(ctx context.Context, host domain.Participant, title string) (*domain.Meeting, error) {
	m := &domain.Meeting{
		ID:        domain.NewMeetingID(),
		Code:      domain.NewMeetingCode(),
		Title:     title,
		Host:      host,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	log.Info().Str("module", "meetings").
		Str("meeting_id", string(m.ID)).Str("code", string(m.Code)).Msg("meeting created")
	return m, nil
}

// Join authorizes userID for the meeting named by code and issues a signaling
// token. It does not reserve a seat; the relay tracks actual attendance.
func (s *Service) Join(ctx context.Context, code domain.MeetingCode, userID domain.UserID) (*Grant, error) {
	m, err := s.store.ActiveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "meetings").
		Str("user", string(userID)).Str("code", string(code)).Msg("user authorized to join")
	return &Grant{
		MeetingID:      m.ID,
		MeetingCode:    m.Code,
		SignalingToken: MakeToken(m.ID, s.now()),
		Host:           m.Host,
		IsClassroom:    m.IsClassroom,
	}, nil
}

// End deactivates the meeting. Only the host may end it.
func (s *Service) End(ctx context.Context, code domain.MeetingCode, userID domain.UserID) error {
	m, err := s.store.ActiveByCode(ctx, code)
	if err != nil {
		return err
	}
	if m.Host.ID != userID {
		return ErrNotHost
	}
	if err := s.store.End(ctx, code, s.now()); err != nil {
		return err
	}
	log.Info().Str("module", "meetings").
		Str("code", string(code)).Str("host", string(userID)).Msg("meeting ended by host")
	return nil
}

func (s *Service) ActiveByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	return s.store.ActiveByCode(ctx, code)
}

// CheckToken validates a signaling token against the meeting the code names.
func (s *Service) CheckToken(ctx context.Context, code domain.MeetingCode, token string) error {
	m, err := s.store.ActiveByCode(ctx, code)
	if err != nil {
		return err
	}
	return ValidateToken(token, m.ID, s.tokenTTL, s.now())
}
