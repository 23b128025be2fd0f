package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Publish(ctx context.Context, topic string, msg Message) error {
	return m.Called(ctx, topic, msg).Error(0)
}

type mockEmailSender struct{ mock.Mock }

func (m *mockEmailSender) Send(ctx context.Context, email Email) error {
	return m.Called(ctx, email).Error(0)
}

type fakeSender struct {
	sent []*azservicebus.Message
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, msg *azservicebus.Message, _ *azservicebus.SendMessageOptions) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Close(context.Context) error { return nil }

func TestEventTopic(t *testing.T) {
	require.Equal(t, "event:abc", EventTopic("abc"))
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	n := new(mockNotifier)
	e := new(mockEmailSender)
	msg := Message{Type: "registration", EventID: "e1", SpotsLeft: 3, At: time.Now()}
	email := Email{To: "u1@campus.edu", Subject: "Registration Confirmed: Hackathon"}

	n.On("Publish", mock.Anything, "event:e1", msg).Return(nil).Once()
	e.On("Send", mock.Anything, email).Return(nil).Once()

	d := NewDispatcher(n, e, time.Second)
	d.Notify(msg)
	d.Email(email)
	d.Wait()

	n.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	n := new(mockNotifier)
	e := new(mockEmailSender)
	n.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	e.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	d := NewDispatcher(n, e, time.Second)
	require.NotPanics(t, func() {
		d.Notify(Message{EventID: "e1"})
		d.Email(Email{To: "x@campus.edu"})
		d.Wait()
	})
	n.AssertNumberOfCalls(t, "Publish", 1)
	e.AssertNumberOfCalls(t, "Send", 1)
}

func TestDispatcherSkipsEmailWithoutRecipient(t *testing.T) {
	e := new(mockEmailSender)
	d := NewDispatcher(nil, e, time.Second)
	d.Email(Email{Subject: "no recipient"})
	d.Notify(Message{EventID: "e1"})
	d.Wait()
	e.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestServiceBusEmailSender(t *testing.T) {
	fs := &fakeSender{}
	s := &ServiceBusEmailSender{sender: fs, from: "events@campus.local"}

	require.NoError(t, s.Send(context.Background(), Email{To: "u1@campus.edu", Subject: "hi", Body: "body"}))
	require.Len(t, fs.sent, 1)

	var job map[string]string
	require.NoError(t, json.Unmarshal(fs.sent[0].Body, &job))
	require.Equal(t, "events@campus.local", job["from"])
	require.Equal(t, "u1@campus.edu", job["to"])
	require.Equal(t, "email", fs.sent[0].ApplicationProperties["kind"])

	fs.err = errors.New("queue unavailable")
	require.ErrorContains(t, s.Send(context.Background(), Email{To: "u1@campus.edu"}), "failed to enqueue email")
}
