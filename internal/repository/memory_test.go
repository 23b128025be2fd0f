package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

func newEvent(id string, capacity int, fees int64) model.Event {
	return model.Event{ID: id, Name: "Event " + id, Capacity: capacity, Fees: fees, CreatedAt: t0}
}

func TestMemoryStoreConcurrentRegistrations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	const capacity, attempts = 5, 50
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", capacity, 0)))

	var wg sync.WaitGroup
	var ok, full int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AddRegistration(ctx, "e1", reg(fmt.Sprintf("u%d", i), model.PaymentCompleted))
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, model.ErrCapacityExceeded):
				atomic.AddInt64(&full, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(capacity), ok)
	require.Equal(t, int64(attempts-capacity), full)

	ev, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, ev.Registrations, capacity)
}

func TestMemoryStoreGetEventReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", 2, 0)))
	_, err := store.AddRegistration(ctx, "e1", reg("u1", model.PaymentCompleted))
	require.NoError(t, err)

	ev, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	ev.Registrations[0].UserID = "mutated"
	ev.Registrations = append(ev.Registrations, reg("u9", model.PaymentCompleted))

	again, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, again.Registrations, 1)
	require.Equal(t, "u1", again.Registrations[0].UserID)
}

func TestMemoryStoreUnknownEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetEvent(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.AddRegistration(ctx, "missing", reg("u1", model.PaymentCompleted))
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.RemoveRegistration(ctx, "missing", "u1")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStoreListings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", 3, 0)))
	require.NoError(t, store.CreateEvent(ctx, newEvent("e2", 3, 500)))

	_, err := store.AddRegistration(ctx, "e1", reg("u1", model.PaymentCompleted))
	require.NoError(t, err)
	pending := reg("u1", model.PaymentPending)
	pending.RegisteredAt = t0.Add(time.Minute)
	_, err = store.AddRegistration(ctx, "e2", pending)
	require.NoError(t, err)

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "e2", events[0].ID)
	require.Equal(t, 1, events[1].RegisteredCount)
	require.Equal(t, 2, events[1].AvailableSpots)

	mine, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "e2", mine[0].Event.ID)
	require.Equal(t, model.PaymentPending, mine[0].Registration.PaymentStatus)

	none, err := store.ListPendingPayments(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = store.ApplyPayment(ctx, "e2", "u1", PaymentUpdate{PaymentID: "pi_1", Status: model.PaymentPending, At: t0})
	require.NoError(t, err)
	pendings, err := store.ListPendingPayments(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []model.PendingPayment{{EventID: "e2", UserID: "u1", PaymentID: "pi_1", Fees: 500}}, pendings)
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetUser(ctx, "u1")
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, store.UpsertUser(ctx, model.User{ID: "u1", Email: "a@campus.edu", Role: model.RoleStudent}))
	require.NoError(t, store.UpsertUser(ctx, model.User{ID: "u1", Role: model.RoleAdmin}))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@campus.edu", u.Email)
	require.Equal(t, model.RoleAdmin, u.Role)

	users, err := store.GetUsers(ctx, []string{"u1", "u9"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "a@campus.edu", users["u1"].Email)
}

func TestMemoryStoreUpdateEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", 3, 1000)))

	name, fees := "Robotics Night", int64(1500)
	ev, err := store.UpdateEvent(ctx, "e1", EventPatch{Name: &name, Fees: &fees})
	require.NoError(t, err)
	require.Equal(t, "Robotics Night", ev.Name)
	require.Equal(t, int64(1500), ev.Fees)

	_, err = store.AddRegistration(ctx, "e1", reg("u1", model.PaymentPending))
	require.NoError(t, err)
	free := int64(0)
	_, err = store.UpdateEvent(ctx, "e1", EventPatch{Fees: &free})
	require.ErrorIs(t, err, model.ErrInvalidState)

	got, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, int64(1500), got.Fees)

	_, err = store.UpdateEvent(ctx, "missing", EventPatch{Name: &name})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStoreDeleteEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", 3, 0)))
	require.NoError(t, store.CreateEvent(ctx, newEvent("e2", 3, 0)))
	_, err := store.AddRegistration(ctx, "e1", reg("u1", model.PaymentCompleted))
	require.NoError(t, err)

	removed, err := store.DeleteEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, removed.RegisteredCount())

	_, err = store.GetEvent(ctx, "e1")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.AddRegistration(ctx, "e1", reg("u2", model.PaymentCompleted))
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.DeleteEvent(ctx, "e1")
	require.ErrorIs(t, err, model.ErrNotFound)

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "e2", events[0].ID)

	mine, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestMemoryStoreDeleteRacesRegistrations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, newEvent("e1", 100, 0)))

	const attempts = 40
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.AddRegistration(ctx, "e1", reg(fmt.Sprintf("u%d", i), model.PaymentCompleted))
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	var removed *model.Event
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		var err error
		if removed, err = store.DeleteEvent(ctx, "e1"); err != nil {
			t.Errorf("delete event: %v", err)
		}
	}()
	close(start)
	wg.Wait()

	require.NotNil(t, removed)
	_, err := store.GetEvent(ctx, "e1")
	require.ErrorIs(t, err, model.ErrNotFound)
	for i := 0; i < attempts; i++ {
		mine, err := store.ListByUser(ctx, fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		require.Empty(t, mine)
	}
}
