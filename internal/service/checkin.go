package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/checkin"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// CheckInService issues event credentials and records attendance.
type CheckInService struct {
	store  repository.EventStore
	codec  *checkin.Codec
	qrSize int
	opts   Options
}

// NewCheckInService constructs a CheckInService.
func NewCheckInService(store repository.EventStore, codec *checkin.Codec, qrSize int, opts Options) *CheckInService {
	return &CheckInService{store: store, codec: codec, qrSize: qrSize, opts: opts.withDefaults()}
}

// GenerateCredential issues a signed credential for an existing event.
// With withQR set, the credential also carries a PNG data URL for display.
func (s *CheckInService) GenerateCredential(ctx context.Context, eventID string, withQR bool) (*model.CheckInCredential, error) {
	ev, err := loadEvent(ctx, s.store, s.opts.Retry, eventID)
	if err != nil {
		return nil, err
	}

	payload, issuedAt, err := s.codec.Encode(ev.ID)
	if err != nil {
		return nil, err
	}
	cred := &model.CheckInCredential{EventID: ev.ID, Payload: payload, IssuedAt: issuedAt}

	if withQR {
		png, err := s.RenderQR(cred)
		if err != nil {
			return nil, err
		}
		cred.QRCode = checkin.DataURL(png)
	}
	return cred, nil
}

// RenderQR draws the credential payload as a PNG.
func (s *CheckInService) RenderQR(cred *model.CheckInCredential) ([]byte, error) {
	return checkin.RenderQR(cred.Payload, s.qrSize)
}

// ProcessCheckIn verifies payload and marks userID as attended on the event it names.
// An empty userID checks in the actor; checking in anyone else requires the admin role.
// A repeated check-in succeeds and keeps the first check-in time.
func (s *CheckInService) ProcessCheckIn(ctx context.Context, actor model.Actor, payload, userID string) (*model.Registration, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("check in another user: %w", model.ErrForbidden)
	}

	eventID, err := s.codec.Decode(payload)
	if err != nil {
		return nil, err
	}

	// The actor was vouched for by the identity provider; anyone else must be known.
	if userID != actor.UserID {
		if _, err := withRetry(ctx, s.opts.Retry, "get user", func() (*model.User, error) {
			return s.store.GetUser(ctx, userID)
		}); err != nil {
			return nil, err
		}
	}

	reg, err := withRetry(ctx, s.opts.Retry, "check in", func() (*model.Registration, error) {
		return s.store.CheckIn(ctx, eventID, userID, s.opts.Now())
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("event_id", eventID).
		Str("user_id", userID).
		Str("by", actor.UserID).
		Msg("checked in")
	return reg, nil
}

// Stats reports attendance for one event. Checked-in users are listed in registration order.
func (s *CheckInService) Stats(ctx context.Context, eventID string) (*model.CheckInStats, error) {
	ev, err := loadEvent(ctx, s.store, s.opts.Retry, eventID)
	if err != nil {
		return nil, err
	}

	stats := &model.CheckInStats{
		EventID:         ev.ID,
		EventName:       ev.Name,
		TotalRegistered: ev.RegisteredCount(),
		CheckedInUsers:  []model.CheckedInUser{},
	}
	var ids []string
	for _, reg := range ev.Registrations {
		if reg.CheckedIn {
			ids = append(ids, reg.UserID)
		}
	}
	users, err := withRetry(ctx, s.opts.Retry, "get users", func() (map[string]model.User, error) {
		return s.store.GetUsers(ctx, ids)
	})
	if err != nil {
		return nil, err
	}

	for _, reg := range ev.Registrations {
		if !reg.CheckedIn {
			continue
		}
		stats.CheckedIn++
		u := model.CheckedInUser{UserID: reg.UserID}
		if known, ok := users[reg.UserID]; ok {
			u.Name = known.Name
			u.Email = known.Email
		}
		if reg.CheckInTime != nil {
			u.CheckInTime = *reg.CheckInTime
		}
		stats.CheckedInUsers = append(stats.CheckedInUsers, u)
	}
	if stats.TotalRegistered > 0 {
		stats.CheckInRate = float64(stats.CheckedIn) / float64(stats.TotalRegistered)
	}
	return stats, nil
}
