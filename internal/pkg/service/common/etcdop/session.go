// Package etcdop contains etcd helpers shared by services.
package etcdop

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
)

// OnSessionFn is called for each new session, it must not block.
// Work started in the callback should stop on <-session.Done().
type OnSessionFn func(session *concurrency.Session) error

// ResistantSession creates an etcd session and re-creates it with a backoff if it expires,
// for example after a longer network outage.
//
// The returned channel reports the result of the initialization:
// the first session creation, the first keep-alive and the first onSession call.
// After a successful initialization, the session is re-created until the context is cancelled.
// The last session is closed (its lease revoked) when the context is cancelled.
func ResistantSession(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, ttlSeconds int, onSession OnSessionFn) <-chan error {
	logger = logger.WithComponent("etcd.session")
	logger.Info(ctx, "creating etcd session")

	initDone := make(chan error, 1)
	s := &resistantSession{
		logger:     logger,
		client:     client,
		ttlSeconds: ttlSeconds,
		onSession:  onSession,
		backoff:    newSessionBackoff(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, initDone)
	}()

	return initDone
}

type resistantSession struct {
	logger     log.Logger
	client     *etcd.Client
	ttlSeconds int
	onSession  OnSessionFn
	backoff    *backoff.ExponentialBackOff
}

func (s *resistantSession) run(ctx context.Context, initDone chan error) {
	// Initialization
	session, err := s.create(ctx, true)
	if err != nil {
		initDone <- err
		close(initDone)
		return
	}
	close(initDone)

	for {
		select {
		case <-ctx.Done():
			s.close(session)
			return
		case <-session.Done():
			s.logger.Warn(ctx, "etcd session expired")
		}

		// Re-create
		for {
			delay := s.backoff.NextBackOff()
			s.logger.Infof(ctx, "re-creating etcd session, backoff delay %s", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			if session, err = s.create(ctx, false); err == nil {
				break
			}
			s.logger.Errorf(ctx, "cannot re-create etcd session: %s", err)
		}
	}
}

func (s *resistantSession) create(ctx context.Context, init bool) (*concurrency.Session, error) {
	startTime := time.Now()

	// The session lease is kept alive until the session is closed, so the background context is used.
	session, err := concurrency.NewSession(s.client, concurrency.WithTTL(s.ttlSeconds), concurrency.WithContext(context.Background()))
	if err != nil {
		return nil, err
	}

	// Wait for the first keep-alive, so the connection is checked
	if init {
		if _, err := session.Client().KeepAliveOnce(ctx, session.Lease()); err != nil {
			_ = session.Close()
			return nil, err
		}
	}

	s.backoff.Reset()
	s.logger.Infof(ctx, "created etcd session | %s", time.Since(startTime))

	if err := s.onSession(session); err != nil {
		if init {
			_ = session.Close()
			return nil, err
		}
		s.logger.Errorf(ctx, "etcd session callback failed: %s", err)
	}

	return session, nil
}

func (s *resistantSession) close(session *concurrency.Session) {
	ctx := context.Background()
	startTime := time.Now()
	s.logger.Info(ctx, "closing etcd session")
	if err := session.Close(); err != nil {
		s.logger.Warnf(ctx, "cannot close etcd session: %s", err)
	} else {
		s.logger.Infof(ctx, "closed etcd session | %s", time.Since(startTime))
	}
}

func newSessionBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
