package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamName is the JetStream stream carrying promptcron events
	StreamName = "PROMPTCRON"

	// SubjectScheduleChanged carries definition changes made outside the daemon
	SubjectScheduleChanged = "promptcron.schedules.changed"

	// SubjectRunCompleted carries the outcome of every run
	SubjectRunCompleted = "promptcron.runs.completed"
)

// ChangeAction describes what happened to a schedule definition
type ChangeAction string

const (
	ActionCreated ChangeAction = "created"
	ActionUpdated ChangeAction = "updated"
	ActionDeleted ChangeAction = "deleted"
	ActionPaused  ChangeAction = "paused"
	ActionResumed ChangeAction = "resumed"
)

// ScheduleChanged is published after every definition mutation
type ScheduleChanged struct {
	ScheduleID string       `json:"schedule_id"`
	Name       string       `json:"name"`
	Action     ChangeAction `json:"action"`
	Timestamp  time.Time    `json:"timestamp"`
}

// RunCompleted is published after a run reaches a terminal state
type RunCompleted struct {
	ScheduleID string    `json:"schedule_id"`
	LogID      string    `json:"log_id"`
	Success    bool      `json:"success"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bus publishes and subscribes to promptcron events over JetStream
type Bus struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewBus creates a new event bus, creating the stream if it does not exist
func NewBus(js nats.JetStreamContext, logger *zap.Logger) (*Bus, error) {
	_, err := js.StreamInfo(StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{"promptcron.>"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return &Bus{
		js:     js,
		logger: logger.Named("events"),
	}, nil
}

// Connect dials the NATS server and returns a bus with its connection
func Connect(url string, logger *zap.Logger) (*Bus, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("promptcron"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus, err := NewBus(js, logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return bus, nc, nil
}

// PublishScheduleChanged announces a definition change
func (b *Bus) PublishScheduleChanged(ctx context.Context, event ScheduleChanged) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return b.publish(ctx, SubjectScheduleChanged, event,
		zap.String("schedule_id", event.ScheduleID),
		zap.String("action", string(event.Action)))
}

// PublishRunCompleted announces a run outcome
func (b *Bus) PublishRunCompleted(ctx context.Context, event RunCompleted) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return b.publish(ctx, SubjectRunCompleted, event,
		zap.String("schedule_id", event.ScheduleID),
		zap.Bool("success", event.Success))
}

func (b *Bus) publish(ctx context.Context, subject string, event interface{}, fields ...zap.Field) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := b.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		b.logger.Error("Failed to publish event",
			append(fields, zap.String("subject", subject), zap.Error(err))...)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", append(fields, zap.String("subject", subject))...)
	return nil
}

// SubscribeScheduleChanged delivers new change events to handler until ctx ends
func (b *Bus) SubscribeScheduleChanged(ctx context.Context, handler func(ScheduleChanged)) error {
	sub, err := b.js.Subscribe(SubjectScheduleChanged, func(msg *nats.Msg) {
		var event ScheduleChanged
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("Failed to unmarshal schedule change", zap.Error(err))
			msg.Term()
			return
		}

		handler(event)
		msg.Ack()
	}, nats.DeliverNew(), nats.AckExplicit())
	if err != nil {
		return fmt.Errorf("failed to subscribe to schedule changes: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
