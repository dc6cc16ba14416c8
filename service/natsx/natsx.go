package natsx

import (
	"encoding/json"
	"time"

	errs "ChatApp/tools/errs"

	"github.com/nats-io/nats.go"
)

// Subjects used by the message persistence pipeline. The relay publishes
// every accepted message; a queue-group consumer writes it to the store.
const (
	SubjectMessageStore = "chat.messages.store"
	QueueMessageStore   = "chat-store-workers"
)

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Client is a thin JSON-payload wrapper around a core NATS connection.
type Client struct {
	nc *nats.Conn
}

func Connect(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errs.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect")
	}
	return &Client{nc: nc}, nil
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.WrapMsg(err, "marshal payload")
	}
	return c.nc.Publish(subject, data)
}

// QueueSubscribe delivers raw payloads to handler within a queue group, so
// multiple workers share the subject without duplicate processing.
func (c *Client) QueueSubscribe(subject, queue string, handler func(data []byte)) (*nats.Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		handler(m.Data)
	})
}

// Close drains in-flight messages before shutting the connection down.
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
