// Package supervisor keeps one event subscription alive per network.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/metrics"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
)

// DefaultReconnectDelay is waited between the end of a session and the next dial.
const DefaultReconnectDelay = 5 * time.Second

// State is the lifecycle state of a subscription.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateStopped      State = "stopped"
)

// Reasons a session ends, used as metric labels.
const (
	reasonDial       = "dial"
	reasonSubscribe  = "subscribe"
	reasonRead       = "read"
	reasonErrorFrame = "error_frame"
	reasonBadFrame   = "bad_frame"
)

// Handler consumes event payloads in delivery order.
type Handler interface {
	HandleNotification(ctx context.Context, raw json.RawMessage) reconcile.Outcome
}

// Observer is told about state transitions and traffic. Implementations must
// be safe for concurrent use by supervisors of different networks.
type Observer interface {
	SetState(network domain.Network, state State)
	RecordEvent(network domain.Network, at time.Time)
	RecordReconnect(network domain.Network)
}

// Config holds per-network subscription settings.
type Config struct {
	Network        domain.Network
	URL            string
	PackageID      string
	Module         string
	ReconnectDelay time.Duration
}

// Supervisor owns the subscription session of one network.
type Supervisor struct {
	cfg      Config
	dialer   sui.Dialer
	handler  Handler
	observer Observer
	log      *slog.Logger
}

// New creates a supervisor. observer may be nil.
func New(cfg Config, dialer sui.Dialer, handler Handler, observer Observer) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		handler:  handler,
		observer: observer,
		log:      slog.Default().With("component", "supervisor", "network", cfg.Network),
	}
}

// Run keeps a subscription open until ctx is cancelled. Every session end
// is followed by a fixed delay and a new dial; there is no retry limit.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("Starting subscription supervisor",
		"url", s.cfg.URL,
		"package", s.cfg.PackageID,
		"module", s.cfg.Module,
	)
	defer s.setState(StateStopped)

	for {
		s.setState(StateConnecting)
		reason, err := s.session(ctx)
		if ctx.Err() != nil {
			s.log.Info("Subscription supervisor stopped")
			return nil
		}

		s.setState(StateDisconnected)
		metrics.SubscriptionReconnects.WithLabelValues(s.cfg.Network.String(), reason).Inc()
		if s.observer != nil {
			s.observer.RecordReconnect(s.cfg.Network)
		}
		s.log.Warn("Subscription session ended, reconnecting",
			"reason", reason,
			"delay", s.cfg.ReconnectDelay,
			"error", err,
		)

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Subscription supervisor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection until it fails. It returns the reason label
// and the error that ended it.
func (s *Supervisor) session(ctx context.Context) (string, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := s.log.With("session", uuid.NewString())

	conn, err := s.dialer.Dial(sessionCtx, s.cfg.URL)
	if err != nil {
		return reasonDial, err
	}
	// Closing the connection unblocks ReadMessage on shutdown.
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(sui.SubscribeRequest(s.cfg.PackageID, s.cfg.Module)); err != nil {
		return reasonSubscribe, err
	}
	log.Debug("Subscription request sent")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return reasonRead, err
		}
		if !sui.IsTextMessage(msgType) {
			continue
		}

		frame, err := sui.ParseFrame(data)
		if err != nil {
			log.Warn("Unparseable subscription frame", "error", err)
			return reasonBadFrame, err
		}

		switch frame.Kind {
		case sui.FrameConfirmation:
			s.setState(StateSubscribed)
			log.Info("Subscribed to contract events", "subscription", string(frame.Payload))
		case sui.FrameError:
			log.Error("Subscription error response", "error", string(frame.Payload))
			return reasonErrorFrame, errors.New(string(frame.Payload))
		case sui.FrameNotification:
			if s.observer != nil {
				s.observer.RecordEvent(s.cfg.Network, time.Now())
			}
			s.handler.HandleNotification(sessionCtx, frame.Payload)
		}
	}
}

func (s *Supervisor) setState(state State) {
	metrics.SetSubscriptionState(s.cfg.Network.String(), string(state))
	if s.observer != nil {
		s.observer.SetState(s.cfg.Network, state)
	}
}
