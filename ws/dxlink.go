package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"greeks_ingest/feed"
	"greeks_ingest/parser"
	"greeks_ingest/utils"
)

// TokenSource hands out the DXLink endpoint and a streamer token.
type TokenSource interface {
	StreamerToken(ctx context.Context) (url string, token string, err error)
}

type Config struct {
	IdleTimeout       time.Duration
	HandshakeTimeout  time.Duration
	Heartbeat         time.Duration
	BufferSize        int
	ConnectRetries    uint64
	AggregationPeriod float64
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = HeartbeatInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.AggregationPeriod <= 0 {
		c.AggregationPeriod = 0.1
	}
	return c
}

// DXLinkFeed opens one websocket per subscription against a DXLink endpoint.
type DXLinkFeed struct {
	tokens TokenSource
	cfg    Config
	log    *zap.SugaredLogger
}

var _ feed.Feed = (*DXLinkFeed)(nil)

func NewDXLinkFeed(tokens TokenSource, cfg Config, log *zap.SugaredLogger) *DXLinkFeed {
	return &DXLinkFeed{tokens: tokens, cfg: cfg.withDefaults(), log: log}
}

func (f *DXLinkFeed) Open(ctx context.Context, kind feed.EventKind, symbols []string) (feed.Subscription, error) {
	fail := func(op string, err error) error {
		return &feed.SubscriptionError{Kind: kind, Op: op, Err: err}
	}

	if len(symbols) == 0 {
		return nil, fail("open", errors.New("no symbols to subscribe"))
	}
	names, ok := parser.DefaultFields[kind]
	if !ok {
		return nil, fail("open", fmt.Errorf("unsupported event kind %q", kind))
	}

	url, token, err := f.tokens.StreamerToken(ctx)
	if err != nil {
		return nil, fail("auth", err)
	}

	client := NewWebSocketClient(url, f.log)
	connect := func() error { return client.Connect(ctx) }
	retry := backoff.WithContext(backoff.WithMaxRetries(utils.NewExponentialBackoff(), f.cfg.ConnectRetries), ctx)
	err = backoff.RetryNotify(connect, retry, func(err error, d time.Duration) {
		f.log.Warnw("Feed connect failed, retrying", "error", err, "retry_in", d)
	})
	if err != nil {
		return nil, fail("connect", err)
	}

	sub := &subscription{
		client:  client,
		kind:    kind,
		symbols: symbols,
		fields:  parser.Fields{kind: names},
		idle:    f.cfg.IdleTimeout,
		events:  make(chan feed.Event, f.cfg.BufferSize),
		done:    make(chan struct{}),
		log:     f.log.With("event_kind", kind),
	}

	if err := sub.handshake(ctx, token, f.cfg); err != nil {
		client.Close()
		return nil, fail("handshake", err)
	}

	client.StartHeartbeat(f.cfg.Heartbeat, func() interface{} {
		return channelMessage{Type: msgKeepalive, Channel: 0}
	})

	sub.wg.Add(1)
	go sub.readLoop()

	sub.log.Infow("Feed subscription opened", "symbols", len(symbols))
	return sub, nil
}

type subscription struct {
	client  *WebSocketClient
	kind    feed.EventKind
	symbols []string
	fields  parser.Fields
	idle    time.Duration
	log     *zap.SugaredLogger

	events chan feed.Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	readErr error
}

func (s *subscription) handshake(ctx context.Context, token string, cfg Config) error {
	deadline := time.Now().Add(cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := s.client.SendJSON(setupMessage{
		Type:                   msgSetup,
		Version:                protocolVersion,
		KeepaliveTimeout:       keepaliveTimeout,
		AcceptKeepaliveTimeout: keepaliveTimeout,
	})
	if err != nil {
		return err
	}
	if err := s.client.SendJSON(authMessage{Type: msgAuth, Token: token}); err != nil {
		return err
	}
	err = s.await(deadline, func(env *parser.Envelope) bool {
		return env.Type == msgAuthState && env.State == stateAuthorized
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	err = s.client.SendJSON(channelRequest{
		Type:       msgChannelRequest,
		Channel:    feedChannel,
		Service:    "FEED",
		Parameters: map[string]string{"contract": "AUTO"},
	})
	if err != nil {
		return err
	}
	err = s.await(deadline, func(env *parser.Envelope) bool {
		return env.Type == msgChannelOpened && env.Channel == feedChannel
	})
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	err = s.client.SendJSON(feedSetup{
		Type:                    msgFeedSetup,
		Channel:                 feedChannel,
		AcceptAggregationPeriod: cfg.AggregationPeriod,
		AcceptDataFormat:        "COMPACT",
		AcceptEventFields:       acceptFields(s.fields),
	})
	if err != nil {
		return err
	}

	return s.client.SendJSON(feedSubscription{
		Type:    msgFeedSubscription,
		Channel: feedChannel,
		Reset:   true,
		Add:     entries(string(s.kind), s.symbols),
	})
}

// await reads control messages until match accepts one.
func (s *subscription) await(deadline time.Time, match func(*parser.Envelope) bool) error {
	for {
		msg, err := s.client.ReadMessage(deadline)
		if err != nil {
			return err
		}
		env, err := parser.ParseEnvelope(msg)
		if err != nil {
			s.log.Debugw("Skipping message during handshake", "error", err)
			continue
		}
		if env.Type == msgError {
			return fmt.Errorf("%s: %s", env.Error, env.Message)
		}
		if env.Type == msgFeedConfig {
			s.applyConfig(env)
			continue
		}
		if match(env) {
			return nil
		}
	}
}

func (s *subscription) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		msg, err := s.client.ReadMessage(time.Time{})
		if err != nil {
			select {
			case <-s.done:
			default:
				s.setErr(fmt.Errorf("read: %w", err))
			}
			return
		}

		env, err := parser.ParseEnvelope(msg)
		if err != nil {
			s.log.Warnw("Skipping undecodable feed message", "error", err)
			continue
		}

		switch env.Type {
		case msgFeedData:
			events, err := parser.DecodeFeedData(env.Data, s.fields)
			if err != nil {
				s.log.Warnw("Skipping undecodable feed data", "error", err)
				continue
			}
			for _, ev := range events {
				if ev.Kind != s.kind {
					continue
				}
				select {
				case s.events <- ev:
				case <-s.done:
					return
				}
			}
		case msgFeedConfig:
			s.applyConfig(env)
		case msgChannelClosed:
			if env.Channel == feedChannel {
				s.log.Infow("Feed channel closed by server")
				return
			}
		case msgError:
			s.setErr(fmt.Errorf("%s: %s", env.Error, env.Message))
			return
		}
	}
}

// applyConfig adopts the field order the server actually uses.
func (s *subscription) applyConfig(env *parser.Envelope) {
	if len(env.EventFields) == 0 {
		return
	}
	fields := s.fields.Merge(env.EventFields)
	if err := fields.Validate(); err != nil {
		s.log.Warnw("Ignoring feed config", "error", err)
		return
	}
	s.fields = fields
}

func (s *subscription) Next(ctx context.Context) (feed.Event, error) {
	select {
	case <-s.done:
		return feed.Event{}, feed.ErrClosed
	default:
	}

	var idle <-chan time.Time
	if s.idle > 0 {
		timer := time.NewTimer(s.idle)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.err(); err != nil {
				return feed.Event{}, &feed.SubscriptionError{Kind: s.kind, Op: "read", Err: err}
			}
			return feed.Event{}, feed.ErrEndOfStream
		}
		return ev, nil
	case <-ctx.Done():
		return feed.Event{}, ctx.Err()
	case <-idle:
		return feed.Event{}, feed.ErrIdleTimeout
	case <-s.done:
		return feed.Event{}, feed.ErrClosed
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.client.SendJSON(feedSubscription{
			Type:    msgFeedSubscription,
			Channel: feedChannel,
			Remove:  entries(string(s.kind), s.symbols),
		})
		_ = s.client.SendJSON(channelMessage{Type: msgChannelCancel, Channel: feedChannel})
		err = s.client.Close()
		s.wg.Wait()
		s.log.Infow("Feed subscription closed")
	})
	return err
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

func (s *subscription) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}
