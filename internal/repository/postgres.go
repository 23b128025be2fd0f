package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// PostgresStore persists events and registrations in PostgreSQL.
// It uses pgx directly (no ORM) so the locking behaviour stays visible in the SQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, name, description, location, starts_at, capacity, fees, created_at`

const registrationColumns = `user_id, registered_at, payment_status, payment_id, amount_paid, checked_in, check_in_time`

// CreateEvent inserts a new event.
func (s *PostgresStore) CreateEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Name, e.Description, e.Location, e.StartsAt, e.Capacity, e.Fees, e.CreatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// GetEvent returns a single event with its registrations in arrival order, or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	e.Registrations, err = loadRegistrations(ctx, s.db, id)
	if err != nil {
		return nil, classify(err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
// The registered count is computed by the query, never read from a stored counter.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.EventSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.name, e.description, e.location, e.starts_at, e.capacity, e.fees, e.created_at,
		        COUNT(r.user_id)
		 FROM events e
		 LEFT JOIN registrations r ON r.event_id = e.id
		 GROUP BY e.id
		 ORDER BY e.created_at DESC`,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var events []model.EventSummary
	for rows.Next() {
		var e model.EventSummary
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt,
			&e.Capacity, &e.Fees, &e.CreatedAt, &e.RegisteredCount); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.AvailableSpots = e.Capacity - e.RegisteredCount
		events = append(events, e)
	}
	return events, classify(rows.Err())
}

// withEventLock runs fn inside a transaction that holds the event's row lock.
//
// A naive read-then-write lets two transactions read the same registration count,
// both see a free seat, and both insert. SELECT … FOR UPDATE takes a row-level
// exclusive lock on the event the moment it executes; any other transaction that
// tries to lock the same row blocks until we COMMIT or ROLLBACK. Registrations on
// other events lock other rows and proceed in parallel.
func (s *PostgresStore) withEventLock(ctx context.Context, eventID string, fn func(tx pgx.Tx, ev *model.Event) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ev, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		return classify(err)
	}
	if ev.Registrations, err = loadRegistrations(ctx, tx, eventID); err != nil {
		return classify(err)
	}

	if err = fn(tx, ev); err != nil {
		return classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// UpdateEvent applies patch while holding the event row lock.
func (s *PostgresStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*model.Event, error) {
	var out *model.Event
	err := s.withEventLock(ctx, id, func(tx pgx.Tx, ev *model.Event) error {
		if err := revise(ev, patch); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE events
			 SET name = $2, description = $3, location = $4, starts_at = $5, fees = $6
			 WHERE id = $1`,
			ev.ID, ev.Name, ev.Description, ev.Location, ev.StartsAt, ev.Fees,
		); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent removes the event while holding its row lock. Registrations go with it
// through ON DELETE CASCADE; a register blocked on the lock then finds no row.
func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) (*model.Event, error) {
	var out *model.Event
	err := s.withEventLock(ctx, id, func(tx pgx.Tx, ev *model.Event) error {
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddRegistration inserts reg iff the user holds no seat and one is free.
func (s *PostgresStore) AddRegistration(ctx context.Context, eventID string, reg model.Registration) (*model.Event, error) {
	var out *model.Event
	err := s.withEventLock(ctx, eventID, func(tx pgx.Tx, ev *model.Event) error {
		added, err := admit(ev, reg)
		if err != nil {
			return err
		}
		if err := insertRegistration(ctx, tx, eventID, *added); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveRegistration hard-deletes the user's registration.
func (s *PostgresStore) RemoveRegistration(ctx context.Context, eventID, userID string) (*model.Event, error) {
	var out *model.Event
	err := s.withEventLock(ctx, eventID, func(tx pgx.Tx, ev *model.Event) error {
		if _, err := withdraw(ev, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`,
			eventID, userID,
		); err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyPayment records a payment outcome under the event row lock.
func (s *PostgresStore) ApplyPayment(ctx context.Context, eventID, userID string, upd PaymentUpdate) (*model.Event, error) {
	var out *model.Event
	err := s.withEventLock(ctx, eventID, func(tx pgx.Tx, ev *model.Event) error {
		reg, inserted, err := settle(ev, userID, upd)
		if err != nil {
			return err
		}
		if inserted {
			err = insertRegistration(ctx, tx, eventID, *reg)
		} else {
			err = updateRegistration(ctx, tx, eventID, *reg)
		}
		if err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckIn marks the user's registration as attended.
func (s *PostgresStore) CheckIn(ctx context.Context, eventID, userID string, at time.Time) (*model.Registration, error) {
	var out *model.Registration
	err := s.withEventLock(ctx, eventID, func(tx pgx.Tx, ev *model.Event) error {
		reg, changed, err := markAttended(ev, userID, at)
		if err != nil {
			return err
		}
		if changed {
			if err := updateRegistration(ctx, tx, eventID, *reg); err != nil {
				return err
			}
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser returns every event the user is registered for, newest registration first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.name, e.description, e.location, e.starts_at, e.capacity, e.fees, e.created_at,
		        (SELECT COUNT(*) FROM registrations c WHERE c.event_id = e.id),
		        r.user_id, r.registered_at, r.payment_status, r.payment_id, r.amount_paid,
		        r.checked_in, r.check_in_time
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.user_id = $1
		 ORDER BY r.registered_at DESC`,
		userID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list user registrations: %w", err))
	}
	defer rows.Close()

	var out []model.UserRegistration
	for rows.Next() {
		var (
			ur     model.UserRegistration
			status string
		)
		e, r := &ur.Event, &ur.Registration
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt,
			&e.Capacity, &e.Fees, &e.CreatedAt, &e.RegisteredCount,
			&r.UserID, &r.RegisteredAt, &status, &r.PaymentID, &r.AmountPaid,
			&r.CheckedIn, &r.CheckInTime); err != nil {
			return nil, fmt.Errorf("scan user registration: %w", err)
		}
		e.AvailableSpots = e.Capacity - e.RegisteredCount
		r.PaymentStatus = model.PaymentStatus(status)
		out = append(out, ur)
	}
	return out, classify(rows.Err())
}

// ListPendingPayments returns pending registrations that carry a payment reference.
func (s *PostgresStore) ListPendingPayments(ctx context.Context, limit int) ([]model.PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT r.event_id, r.user_id, r.payment_id, e.fees
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.payment_status = 'pending' AND r.payment_id <> ''
		 ORDER BY r.registered_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list pending payments: %w", err))
	}
	defer rows.Close()

	var out []model.PendingPayment
	for rows.Next() {
		var p model.PendingPayment
		if err := rows.Scan(&p.EventID, &p.UserID, &p.PaymentID, &p.Fees); err != nil {
			return nil, fmt.Errorf("scan pending payment: %w", err)
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

// UpsertUser records or refreshes a user mirrored from the identity provider.
func (s *PostgresStore) UpsertUser(ctx context.Context, u model.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   name  = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		   email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		   role  = EXCLUDED.role`,
		u.ID, u.Name, u.Email, string(u.Role),
	)
	if err != nil {
		return classify(fmt.Errorf("upsert user: %w", err))
	}
	return nil
}

// GetUser returns a single user or ErrNotFound.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
		}
		return nil, classify(fmt.Errorf("get user: %w", err))
	}
	u.Role = model.Role(role)
	return &u, nil
}

// GetUsers returns the known users among ids in one query.
func (s *PostgresStore) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, email, role FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(fmt.Errorf("get users: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u    model.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(role)
		out[u.ID] = u
	}
	return out, classify(rows.Err())
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.Capacity, &e.Fees, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("event: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadRegistrations(ctx context.Context, q querier, eventID string) ([]model.Registration, error) {
	rows, err := q.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY seq ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var (
			reg    model.Registration
			status string
		)
		if err := rows.Scan(&reg.UserID, &reg.RegisteredAt, &status, &reg.PaymentID,
			&reg.AmountPaid, &reg.CheckedIn, &reg.CheckInTime); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.PaymentStatus = model.PaymentStatus(status)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func insertRegistration(ctx context.Context, tx pgx.Tx, eventID string, reg model.Registration) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO registrations (event_id, `+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		eventID, reg.UserID, reg.RegisteredAt, string(reg.PaymentStatus), reg.PaymentID,
		reg.AmountPaid, reg.CheckedIn, reg.CheckInTime,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func updateRegistration(ctx context.Context, tx pgx.Tx, eventID string, reg model.Registration) error {
	_, err := tx.Exec(ctx,
		`UPDATE registrations
		 SET payment_status = $3, payment_id = $4, amount_paid = $5, checked_in = $6, check_in_time = $7
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, reg.UserID, string(reg.PaymentStatus), reg.PaymentID, reg.AmountPaid,
		reg.CheckedIn, reg.CheckInTime,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	return nil
}

// classify maps driver errors onto the store's error vocabulary.
func classify(err error) error {
	if err == nil || model.IsDomainError(err) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			// unique_violation on (event_id, user_id)
			return fmt.Errorf("%w: %w", model.ErrConflict, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03",
			strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
