// Package activity records last_login and api key last_used timestamps off
// the request path.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/repositories"
	"go.uber.org/zap"
)

// Kind identifies which timestamp an event updates
type Kind string

const (
	KindLastLogin     Kind = "last_login"
	KindAPIKeyLastUse Kind = "api_key_last_used"
)

// Event is a single timestamp update
type Event struct {
	Kind Kind
	ID   uuid.UUID
	At   time.Time
}

// Service writes activity events through a bounded queue and a worker pool.
// Events are never dropped: when the queue is full, or the service is not
// running, the write happens inline on the caller's goroutine.
type Service struct {
	users        repositories.UserRepository
	apiKeys      repositories.APIKeyRepository
	logger       *zap.Logger
	events       chan Event
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup

	// mu guards started/stopped and the send side of events
	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the Service
type Config struct {
	BufferSize   int // Size of the event buffer channel
	WorkerCount  int // Number of concurrent workers
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewService creates a new activity Service
func NewService(users repositories.UserRepository, apiKeys repositories.APIKeyRepository, logger *zap.Logger, config Config) *Service {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	return &Service{
		users:        users,
		apiKeys:      apiKeys,
		logger:       logger,
		events:       make(chan Event, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("activity service already started")
	}
	if s.stopped {
		return fmt.Errorf("activity service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started activity service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop closes the queue and waits for the workers to drain it
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("activity service not running")
	}
	s.stopped = true
	pending := len(s.events)
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping activity service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("activity service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("activity service stop timeout after %v", timeout)
	}
}

// RecordLogin queues a last_login update for the user
func (s *Service) RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) {
	s.record(ctx, Event{Kind: KindLastLogin, ID: userID, At: at})
}

// RecordAPIKeyUse queues a last_used update for the key
func (s *Service) RecordAPIKeyUse(ctx context.Context, keyID uuid.UUID, at time.Time) {
	s.record(ctx, Event{Kind: KindAPIKeyLastUse, ID: keyID, At: at})
}

func (s *Service) record(ctx context.Context, event Event) {
	s.mu.RLock()
	if s.started && !s.stopped {
		select {
		case s.events <- event:
			observability.SetActivityQueueDepth(len(s.events))
			s.mu.RUnlock()
			return
		default:
		}
	}
	s.mu.RUnlock()

	// Queue full or not running: write inline rather than lose the update.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	err := s.write(wctx, event)
	observability.RecordActivityWrite(string(event.Kind), "inline", err)
	if err != nil {
		s.logger.Error("failed to write activity inline",
			zap.String("kind", string(event.Kind)),
			zap.String("id", event.ID.String()),
			zap.Error(err))
	}
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("activity worker started", zap.Int("worker_id", id))

	for event := range s.events {
		observability.SetActivityQueueDepth(len(s.events))

		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.write(ctx, event)
		cancel()

		observability.RecordActivityWrite(string(event.Kind), "queued", err)
		if err != nil {
			s.logger.Error("failed to process activity event",
				zap.Int("worker_id", id),
				zap.String("kind", string(event.Kind)),
				zap.String("id", event.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Debug("activity worker stopped", zap.Int("worker_id", id))
}

func (s *Service) write(ctx context.Context, event Event) error {
	switch event.Kind {
	case KindLastLogin:
		return s.users.TouchLastLogin(ctx, event.ID, event.At)
	case KindAPIKeyLastUse:
		return s.apiKeys.TouchLastUsed(ctx, event.ID, event.At)
	default:
		return fmt.Errorf("unknown activity kind %q", event.Kind)
	}
}

// GetStats returns statistics about the service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.events),
		WorkerCount:   s.workerCount,
		Running:       s.started && !s.stopped,
	}
}

// HealthCheck fails once the workers are not running. Writes still land
// inline then, but the process is on its way down.
func (s *Service) HealthCheck(context.Context) error {
	stats := s.GetStats()
	if !stats.Running {
		return fmt.Errorf("activity recorder not running")
	}
	observability.SetActivityQueueDepth(stats.PendingEvents)
	return nil
}

// Stats represents activity service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Running       bool
}
