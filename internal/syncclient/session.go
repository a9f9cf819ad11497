package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/config"
	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// Fetcher reads a full snapshot from the order service.
type Fetcher interface {
	FetchOrders(ctx context.Context) (Snapshot, error)
}

// PushClient holds one push connection open. Listen sends joins, calls
// connected once the channel is live, and hands every received input to
// deliver until the connection drops or ctx ends.
type PushClient interface {
	Listen(ctx context.Context, joins []Join, connected func(), deliver func(Input)) error
}

type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connected    ConnectionState = "CONNECTED"
)

var (
	ErrSessionStarted = errors.New("sync session already started")
	// ErrSessionStopped is returned by a poll that outlived Stop; its result
	// was discarded.
	ErrSessionStopped = errors.New("sync session stopped")
)

// Options are optional session callbacks.
type Options struct {
	// OnChange runs after any merge that changed the board.
	OnChange func()
	// OnError receives persistent transport failures.
	OnError func(error)
	// OnState runs on every connection state change.
	OnState func(ConnectionState)
}

// SyncSession drives one viewer: a push loop that keeps the live channel open
// and a poll loop that backfills whatever push missed. Both feed Board.Apply.
type SyncSession struct {
	board   *Board
	fetcher Fetcher
	pusher  PushClient
	profile Profile
	cfg     config.SyncConfig
	opts    Options
	logger  logger.Logger

	mu       sync.Mutex
	state    ConnectionState
	failures int
	cancel   context.CancelFunc
	running  bool

	// epoch is bumped by Stop so polls started before it are not merged.
	stopMu sync.Mutex
	epoch  uint64

	stateChanged chan struct{}
	refresh      chan struct{}
	wg           sync.WaitGroup
}

func NewSession(board *Board, fetcher Fetcher, pusher PushClient, profile Profile, cfg config.SyncConfig, opts Options, logger logger.Logger) *SyncSession {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &SyncSession{
		board:        board,
		fetcher:      fetcher,
		pusher:       pusher,
		profile:      profile,
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		state:        Disconnected,
		stateChanged: make(chan struct{}, 1),
		refresh:      make(chan struct{}, 1),
	}
}

func (s *SyncSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.pollLoop(ctx)
	if s.pusher != nil {
		s.wg.Add(1)
		go s.pushLoop(ctx)
	}
	return nil
}

// Stop cancels both loops and waits for them. A poll in flight finishes but
// its result is not merged.
func (s *SyncSession) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.stopMu.Lock()
	s.epoch++
	s.stopMu.Unlock()

	cancel()
	s.wg.Wait()
	s.setState(Disconnected)
}

func (s *SyncSession) Board() *Board {
	return s.board
}

func (s *SyncSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh polls immediately, outside the timer. A refresh still running when
// Stop is called returns ErrSessionStopped and leaves the board alone.
func (s *SyncSession) Refresh(ctx context.Context) error {
	return s.poll(ctx)
}

// ApplyActionResult merges the order returned by the viewer's own mutation.
func (s *SyncSession) ApplyActionResult(order *domain.Order) {
	s.apply(ActionResult{Order: order})
}

func (s *SyncSession) interval() time.Duration {
	if s.State() == Connected {
		return s.cfg.ConnectedInterval
	}
	return s.cfg.DisconnectedInterval
}

func (s *SyncSession) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	s.poll(ctx)

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.poll(ctx)
		case <-s.refresh:
			s.poll(ctx)
		case <-s.stateChanged:
			// a fresh connection may have missed events while it was down
			if s.State() == Connected {
				s.poll(ctx)
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.interval())
	}
}

func (s *SyncSession) poll(ctx context.Context) error {
	s.stopMu.Lock()
	epoch := s.epoch
	s.stopMu.Unlock()

	reqCtx := ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	snapshot, err := s.fetcher.FetchOrders(reqCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.epoch != epoch {
		return ErrSessionStopped
	}
	if err != nil {
		s.recordFailure(err)
		return err
	}

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	s.apply(snapshot)
	return nil
}

func (s *SyncSession) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	s.logger.Debug("poll_failed", "Snapshot poll failed", "", map[string]interface{}{
		"failures": failures,
		"error":    err.Error(),
	})

	if failures == s.cfg.FailureThreshold && s.opts.OnError != nil {
		te := domain.NewTransitionError(domain.CodeTransport,
			fmt.Sprintf("order service unreachable after %d attempts", failures))
		te.Cause = err
		s.opts.OnError(te)
	}
}

func (s *SyncSession) pushLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		err := s.pusher.Listen(ctx, s.profile.Joins(), func() {
			s.setState(Connected)
		}, s.handlePush)
		s.setState(Disconnected)

		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("push_disconnected", "Push channel lost", "", map[string]interface{}{
			"retry_in": s.cfg.ReconnectDelay.String(),
			"error":    fmt.Sprint(err),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *SyncSession) handlePush(in Input) {
	s.apply(in)

	_, created := in.(Created)
	if created || s.board.NeedsRefresh() {
		s.requestRefresh()
	}
}

func (s *SyncSession) requestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *SyncSession) apply(in Input) {
	if s.board.Apply(in) && s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

func (s *SyncSession) setState(state ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Info("connection_state", "Push connection state changed", "", map[string]interface{}{"state": state})
	if s.opts.OnState != nil {
		s.opts.OnState(state)
	}
	select {
	case s.stateChanged <- struct{}{}:
	default:
	}
}
