package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// bookingResult is the outcome of one attempt in registerConcurrently.
type bookingResult struct {
	UserID  string
	Success bool
	Error   error
}

// registerConcurrently fires one Register call per actor at the same time.
func registerConcurrently(svc *RegistrationService, eventID string, actors []model.Actor) []bookingResult {
	results := make([]bookingResult, len(actors))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, a := range actors {
		wg.Add(1)
		go func(i int, a model.Actor) {
			defer wg.Done()
			<-start
			_, err := svc.Register(context.Background(), a, eventID)
			results[i] = bookingResult{UserID: a.UserID, Success: err == nil, Error: err}
		}(i, a)
	}
	close(start)
	wg.Wait()
	return results
}

func TestConcurrentRegistrationsRespectCapacity(t *testing.T) {
	const n, capacity = 60, 7
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Workshop", capacity, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	actors := make([]model.Actor, n)
	for i := range actors {
		actors[i] = student(fmt.Sprintf("u%d", i))
	}
	results := registerConcurrently(svc, eventID, actors)

	var ok, full int
	for _, r := range results {
		switch {
		case r.Success:
			ok++
		case errors.Is(r.Error, model.ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error for %s: %v", r.UserID, r.Error)
		}
	}
	require.Equal(t, capacity, ok)
	require.Equal(t, n-capacity, full)

	ev, err := store.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Equal(t, capacity, ev.RegisteredCount())
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Workshop", 10, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	actors := make([]model.Actor, 20)
	for i := range actors {
		actors[i] = student("same-user")
	}
	results := registerConcurrently(svc, eventID, actors)

	var ok int
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		require.ErrorIs(t, r.Error, model.ErrConflict)
	}
	require.Equal(t, 1, ok)
}

func TestRegisterFreeEventCompletesImmediately(t *testing.T) {
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Open Day", 5, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	reg, err := svc.Register(context.Background(), student("u1"), eventID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, reg.PaymentStatus)
	require.Zero(t, reg.AmountPaid)
	require.False(t, reg.CheckedIn)
}

func TestRegisterPaidEventStaysPending(t *testing.T) {
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Gala", 5, 10)
	svc := NewRegistrationService(store, nil, testOptions())

	reg, err := svc.Register(context.Background(), student("u1"), eventID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, reg.PaymentStatus)
	require.Zero(t, reg.AmountPaid)
}

func TestRegistrationScenario(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "E1", 2, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	count := func() int {
		ev, err := store.GetEvent(ctx, eventID)
		require.NoError(t, err)
		return ev.RegisteredCount()
	}

	_, err := svc.Register(ctx, student("u1"), eventID)
	require.NoError(t, err)
	require.Equal(t, 1, count())

	_, err = svc.Register(ctx, student("u2"), eventID)
	require.NoError(t, err)
	require.Equal(t, 2, count())

	_, err = svc.Register(ctx, student("u3"), eventID)
	require.ErrorIs(t, err, model.ErrCapacityExceeded)

	require.NoError(t, svc.Cancel(ctx, student("u1"), eventID))
	require.Equal(t, 1, count())

	_, err = svc.Register(ctx, student("u3"), eventID)
	require.NoError(t, err)
	require.Equal(t, 2, count())
}

func TestCancelFreesExactlyOneSeat(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Full House", 3, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	for _, u := range []string{"a", "b", "c"} {
		_, err := svc.Register(ctx, student(u), eventID)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Cancel(ctx, student("b"), eventID))

	actors := make([]model.Actor, 10)
	for i := range actors {
		actors[i] = student(fmt.Sprintf("late%d", i))
	}
	var ok int
	for _, r := range registerConcurrently(svc, eventID, actors) {
		if r.Success {
			ok++
		}
	}
	require.Equal(t, 1, ok)
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Talk", 1, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	_, err := svc.Register(ctx, student("u1"), "missing")
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.Register(ctx, model.Actor{}, eventID)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = svc.Register(ctx, student("u1"), eventID)
	require.NoError(t, err)

	// Duplicate is reported even though the event is now full.
	_, err = svc.Register(ctx, student("u1"), eventID)
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestCancelUnknownRegistration(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Talk", 1, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	require.ErrorIs(t, svc.Cancel(ctx, student("u1"), eventID), model.ErrNotFound)
	require.ErrorIs(t, svc.Cancel(ctx, student("u1"), "missing"), model.ErrNotFound)
}

func TestRegisterPublishesAndEmails(t *testing.T) {
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Robotics Demo", 5, 0)

	n := new(mockNotifier)
	n.On("Publish", notify.EventTopic(eventID), MessageRegistration).Return(nil).Once()
	n.On("Publish", notify.EventTopic(eventID), MessageCancellation).Return(nil).Once()
	e := new(mockEmailSender)
	e.On("Send", "u1@campus.edu", "Registration Confirmed: Robotics Demo").Return(nil).Once()

	d := notify.NewDispatcher(n, e, 0)
	svc := NewRegistrationService(store, d, testOptions())

	_, err := svc.Register(context.Background(), student("u1"), eventID)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), student("u1"), eventID))
	d.Wait()

	n.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestRegisterSucceedsWhenSideEffectsFail(t *testing.T) {
	store := repository.NewMemoryStore()
	eventID := seedEvent(t, store, "Talk", 5, 0)

	n := new(mockNotifier)
	n.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	e := new(mockEmailSender)
	e.On("Send", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	d := notify.NewDispatcher(n, e, 0)
	svc := NewRegistrationService(store, d, testOptions())

	reg, err := svc.Register(context.Background(), student("u1"), eventID)
	require.NoError(t, err)
	require.Equal(t, "u1", reg.UserID)
	d.Wait()

	ev, err := store.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Equal(t, 1, ev.RegisteredCount())
}

func TestRegisterRetriesTransientFailures(t *testing.T) {
	store := new(flakyStore)
	after := &model.Event{ID: "e1", Name: "Talk", Capacity: 2, Registrations: []model.Registration{
		{UserID: "u1", PaymentStatus: model.PaymentCompleted},
	}}
	store.On("AddRegistration", "e1", "u1").Return(nil, fmt.Errorf("dial: %w", repository.ErrTransient)).Once()
	store.On("AddRegistration", "e1", "u1").Return(after, nil).Once()

	svc := NewRegistrationService(store, nil, testOptions())
	reg, err := svc.Register(context.Background(), student("u1"), "e1")
	require.NoError(t, err)
	require.Equal(t, "u1", reg.UserID)
	store.AssertExpectations(t)
}

func TestRegisterUnavailableAfterRetries(t *testing.T) {
	store := new(flakyStore)
	store.On("AddRegistration", "e1", "u1").Return(nil, fmt.Errorf("timeout: %w", repository.ErrTransient))

	svc := NewRegistrationService(store, nil, testOptions())
	_, err := svc.Register(context.Background(), student("u1"), "e1")
	require.ErrorIs(t, err, model.ErrUnavailable)
	require.NotErrorIs(t, err, repository.ErrTransient)
	store.AssertNumberOfCalls(t, "AddRegistration", 3)
}

func TestRegisterDoesNotRetryDomainErrors(t *testing.T) {
	store := new(flakyStore)
	store.On("AddRegistration", "e1", "u1").Return(nil, model.ErrCapacityExceeded)

	svc := NewRegistrationService(store, nil, testOptions())
	_, err := svc.Register(context.Background(), student("u1"), "e1")
	require.ErrorIs(t, err, model.ErrCapacityExceeded)
	store.AssertNumberOfCalls(t, "AddRegistration", 1)
}

func TestListMyRegistrations(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	first := seedEvent(t, store, "First", 5, 0)
	second := seedEvent(t, store, "Second", 5, 2500)
	other := seedEvent(t, store, "Other", 5, 0)
	svc := NewRegistrationService(store, nil, testOptions())

	_, err := svc.Register(ctx, student("u1"), first)
	require.NoError(t, err)
	_, err = svc.Register(ctx, student("u1"), second)
	require.NoError(t, err)
	_, err = svc.Register(ctx, student("u2"), other)
	require.NoError(t, err)

	list, err := svc.ListMyRegistrations(ctx, student("u1"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Second", list[0].Event.Name)
	require.Equal(t, model.PaymentPending, list[0].Registration.PaymentStatus)
	require.Equal(t, "First", list[1].Event.Name)
	require.Equal(t, model.PaymentCompleted, list[1].Registration.PaymentStatus)

	none, err := svc.ListMyRegistrations(ctx, student("nobody"))
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}
