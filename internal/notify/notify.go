// Package notify delivers best-effort side effects: realtime event notifications
// and confirmation emails. Nothing here can fail a registration.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is the payload published on an event's topic.
type Message struct {
	Type      string    `json:"type"`
	EventID   string    `json:"event_id"`
	Message   string    `json:"message"`
	SpotsLeft int       `json:"spots_left"`
	At        time.Time `json:"at"`
}

// Email is a single outbound email.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier publishes messages to a push channel.
type Notifier interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// EmailSender hands an email to a delivery channel.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// EventTopic is the topic a client subscribes to for updates about one event.
func EventTopic(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}

// Dispatcher runs notifications and emails in the background and only logs failures.
type Dispatcher struct {
	notifier Notifier
	email    EmailSender
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. Either sink may be nil.
func NewDispatcher(notifier Notifier, email EmailSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, email: email, timeout: timeout}
}

// Notify publishes msg on the event topic without blocking the caller.
func (d *Dispatcher) Notify(msg Message) {
	if d == nil || d.notifier == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Publish(ctx, EventTopic(msg.EventID), msg); err != nil {
			log.Warn().Err(err).Str("event_id", msg.EventID).Str("type", msg.Type).Msg("publish notification failed")
		}
	}()
}

// Email sends email without blocking the caller.
func (d *Dispatcher) Email(email Email) {
	if d == nil || d.email == nil || email.To == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.email.Send(ctx, email); err != nil {
			log.Warn().Err(err).Str("subject", email.Subject).Msg("send email failed")
		}
	}()
}

// Wait blocks until every in-flight side effect has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier writes notifications to the log. Used when no push channel is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, topic string, msg Message) error {
	log.Info().Str("topic", topic).Str("type", msg.Type).Int("spots_left", msg.SpotsLeft).Msg(msg.Message)
	return nil
}

// LogEmailSender writes emails to the log instead of delivering them.
type LogEmailSender struct{}

func (LogEmailSender) Send(_ context.Context, email Email) error {
	log.Info().Str("to", email.To).Str("subject", email.Subject).Msg("email")
	return nil
}
