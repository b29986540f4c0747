package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docgate/internal/check"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const publishTimeout = 5 * time.Second

// Publisher sends one message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Message is the JSON document published for each transition.
type Message struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Event     trigger.Event `json:"event"`
	Report    *check.Report `json:"report"`
}

// Bus publishes run transitions as JSON on "<subject>.<transition>".
type Bus struct {
	pub     Publisher
	subject string
}

// NewBus creates a bus reporter on top of pub.
func NewBus(pub Publisher, subject string) *Bus {
	return &Bus{pub: pub, subject: subject}
}

// Name implements Reporter.
func (b *Bus) Name() string { return "nats" }

// RunQueued implements Reporter.
func (b *Bus) RunQueued(ctx context.Context, r *check.Report, ev trigger.Event) error {
	return b.publish(ctx, "queued", r, ev)
}

// RunStarted implements Reporter.
func (b *Bus) RunStarted(ctx context.Context, r *check.Report, ev trigger.Event) error {
	return b.publish(ctx, "started", r, ev)
}

// RunFinished implements Reporter.
func (b *Bus) RunFinished(ctx context.Context, r *check.Report, ev trigger.Event) error {
	return b.publish(ctx, string(r.Status), r, ev)
}

func (b *Bus) publish(ctx context.Context, transition string, r *check.Report, ev trigger.Event) error {
	data, err := json.Marshal(Message{Type: transition, Timestamp: time.Now().UTC(), Event: ev, Report: r})
	if err != nil {
		return errors.InternalError("failed to marshal run message").WithCause(err).Build()
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return b.pub.Publish(ctx, b.subject+"."+transition, data)
}

// JetStream publishes to a NATS JetStream stream.
type JetStream struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// ConnectJetStream connects to NATS and, when cfg.Stream is set, ensures a
// stream capturing every subject below cfg.Subject exists.
func ConnectJetStream(ctx context.Context, cfg *config.NATSConfig) (*JetStream, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("docgate"))
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.URL).
			Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.NetworkError("failed to create JetStream context").WithCause(err).Build()
	}

	if cfg.Stream != "" {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:        cfg.Stream,
			Description: "docgate run events",
			Subjects:    []string{cfg.Subject + ".>"},
			MaxAge:      7 * 24 * time.Hour,
		})
		if err != nil {
			conn.Close()
			return nil, errors.NetworkError("failed to ensure JetStream stream").
				WithCause(err).
				WithContext("stream", cfg.Stream).
				Build()
		}
	}

	slog.Info("NATS publisher initialized",
		slog.String("url", cfg.URL),
		slog.String("subject", cfg.Subject),
		slog.String("stream", cfg.Stream))
	return &JetStream{conn: conn, js: js}, nil
}

// Publish implements Publisher.
func (j *JetStream) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		return errors.NetworkError("failed to publish run event").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}
	return nil
}

// Close drains the connection.
func (j *JetStream) Close() {
	if j.conn != nil {
		_ = j.conn.Drain()
	}
}
