package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
)

// messageSender is the part of *azservicebus.Sender the email sender uses.
type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusEmailSender enqueues emails on an Azure Service Bus queue for a mail worker.
type ServiceBusEmailSender struct {
	client *azservicebus.Client
	sender messageSender
	from   string
}

// NewServiceBusEmailSender creates the Service Bus client and queue sender.
func NewServiceBusEmailSender(cfg config.EmailConfig) (*ServiceBusEmailSender, error) {
	if cfg.ConnString == "" {
		return nil, errors.New("email.servicebus_conn_str is empty")
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}
	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}
	return &ServiceBusEmailSender{client: client, sender: sender, from: cfg.From}, nil
}

type emailJob struct {
	From string `json:"from"`
	Email
}

// Send enqueues the email as a JSON message.
func (s *ServiceBusEmailSender) Send(ctx context.Context, email Email) error {
	data, err := json.Marshal(emailJob{From: s.from, Email: email})
	if err != nil {
		return errors.Wrap(err, "failed to marshal email")
	}
	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": "campus-events",
			"kind":   "email",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to enqueue email")
	}
	return nil
}

// Close closes the sender and the client.
func (s *ServiceBusEmailSender) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(context.Background())
	}
	return nil
}
