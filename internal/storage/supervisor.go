package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/repository"
)

// OpenFunc opens a repository for a DSN.
type OpenFunc func(ctx context.Context, dsn string) (repository.LedgerRepository, error)

// Supervisor owns the live repository. Until Connect succeeds, Repository
// returns apperror.ErrConnection and the rest of the process keeps running.
type Supervisor struct {
	dsn      string
	open     OpenFunc
	wrap     func(repository.LedgerRepository) repository.LedgerRepository
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.RWMutex
	repo    repository.LedgerRepository
	lastErr error

	sched gocron.Scheduler
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOpener replaces Open.
func WithOpener(open OpenFunc) Option {
	return func(s *Supervisor) { s.open = open }
}

// WithWrapper decorates the repository once it is connected, e.g. with a cache.
func WithWrapper(wrap func(repository.LedgerRepository) repository.LedgerRepository) Option {
	return func(s *Supervisor) { s.wrap = wrap }
}

// WithReconnect sets how often a degraded supervisor retries and how long
// each attempt may take.
func WithReconnect(interval, timeout time.Duration) Option {
	return func(s *Supervisor) {
		s.interval = interval
		s.timeout = timeout
	}
}

func NewSupervisor(dsn string, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		dsn:      dsn,
		open:     Open,
		interval: time.Minute,
		timeout:  10 * time.Second,
		logger:   logger,
		lastErr:  errors.New("not connected"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the store and ensures its schema. A failure is logged at
// fatal severity but the process is not terminated.
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.Connected() {
		return nil
	}

	repo, err := s.open(ctx, s.dsn)
	if err != nil {
		return s.degrade("connect", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return s.degrade("ensure schema", err)
	}
	if s.wrap != nil {
		repo = s.wrap(repo)
	}

	s.mu.Lock()
	if s.repo != nil {
		// Lost a race with a concurrent Connect.
		s.mu.Unlock()
		repo.Close()
		return nil
	}
	s.repo = repo
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().Msg("store connected and schema ready")
	return nil
}

func (s *Supervisor) degrade(op string, err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.logger.WithLevel(zerolog.FatalLevel).
		Err(err).
		Str("op", op).
		Msg("store unavailable, running degraded")
	return apperror.ConnectionFailure(op, err)
}

// Connected reports whether a repository is available.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo != nil
}

// Repository returns the live repository or a ConnectionFailure.
func (s *Supervisor) Repository() (repository.LedgerRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.repo == nil {
		return nil, apperror.ConnectionFailure("store access", s.lastErr)
	}
	return s.repo, nil
}

// Ping checks the live repository.
func (s *Supervisor) Ping(ctx context.Context) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	return repo.Ping(ctx)
}

// Start schedules the reconnect job. The job does nothing while connected.
func (s *Supervisor) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.reconnect),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return err
	}

	sched.Start()
	s.sched = sched
	return nil
}

func (s *Supervisor) reconnect() {
	if s.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info().Msg("retrying store connection")
	if err := s.Connect(ctx); err == nil {
		s.logger.Info().Msg("store recovered")
	}
}

// Close stops the reconnect job and closes the repository.
func (s *Supervisor) Close() error {
	if s.sched != nil {
		if err := s.sched.Shutdown(); err != nil {
			s.logger.Warn().Err(err).Msg("scheduler shutdown")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	err := s.repo.Close()
	s.repo = nil
	s.lastErr = errors.New("closed")
	return err
}
