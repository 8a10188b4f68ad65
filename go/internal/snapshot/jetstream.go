package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/models"
)

// JetStreamConfig holds configuration for the JetStream snapshot source.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // room snapshots live on "<prefix>.<roomID>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns default JetStream configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_STATES",
		SubjectPrefix: "game.state",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamSource streams room snapshots from a JetStream stream. Each
// subscription uses its own ordered consumer that starts at the last message
// on the room's subject.
type JetStreamSource struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config JetStreamConfig
}

// NewJetStreamSource connects to NATS and looks up the configured stream.
func NewJetStreamSource(ctx context.Context, config JetStreamConfig) (*JetStreamSource, error) {
	opts := []nats.Option{
		nats.Name("roomwatch"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, config.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream %s: %w", config.StreamName, err)
	}

	return &JetStreamSource{
		nc:     nc,
		js:     js,
		stream: stream,
		config: config,
	}, nil
}

// Subject returns the subject carrying snapshots for roomID.
func (s *JetStreamSource) Subject(roomID string) string {
	return s.config.SubjectPrefix + "." + roomID
}

// Subscribe implements Stream.
func (s *JetStreamSource) Subscribe(ctx context.Context, roomID string) (<-chan models.GameState, error) {
	subject := s.Subject(roomID)
	consumer, err := s.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer for %s: %w", subject, err)
	}

	out := make(chan models.GameState, subscriberBuffer)
	msgCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer for %s: %w", subject, err)
	}

	log.Info().Str("room_id", roomID).Str("subject", subject).Msg("subscribed to room snapshots")

	go func() {
		defer close(out)
		defer consumeCtx.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-consumeCtx.Closed():
				log.Warn().Str("room_id", roomID).Msg("JetStream consumer closed")
				return
			case msg := <-msgCh:
				s.handleMessage(roomID, msg, out)
			}
		}
	}()
	return out, nil
}

func (s *JetStreamSource) handleMessage(roomID string, msg jetstream.Msg, out chan models.GameState) {
	env, state, ok, err := DecodeEnvelope(msg.Data())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("subject", msg.Subject()).Msg("skipping malformed snapshot")
		return
	}
	if !ok {
		log.Debug().Str("event_type", env.EventType).Str("subject", msg.Subject()).Msg("ignoring event")
		return
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("room_id", roomID).
		Str("phase", string(state.Phase)).
		Int("round", state.CurrentRound).
		Msg("received snapshot")

	if offer(out, state) {
		log.Warn().Str("room_id", roomID).Msg("snapshot subscriber lagging, dropped older snapshot")
	}
}

// Close drains and closes the NATS connection.
func (s *JetStreamSource) Close() error {
	log.Info().Msg("closing JetStream snapshot source")
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (s *JetStreamSource) IsConnected() bool {
	return s.nc.IsConnected()
}
