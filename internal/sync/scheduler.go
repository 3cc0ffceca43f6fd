package sync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"voxbridge/internal/store"
)

const perUserTimeout = 2 * time.Minute

// Scheduler periodically sweeps all connected Google accounts and
// runs a sync for each.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	store  *store.Store
	logger zerolog.Logger
}

func NewScheduler(svc *Service, st *store.Store, spec string, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		store:  st,
		logger: logger.With().Str("component", "sync-scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) sweep() {
	creds, err := s.store.ListActiveCredentialsByProvider("google")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list google credentials")
		return
	}

	for _, cred := range creds {
		ctx, cancel := context.WithTimeout(context.Background(), perUserTimeout)
		if err := s.svc.SyncGoogle(ctx, cred.UserID); err != nil {
			s.logger.Warn().Err(err).Str("user", cred.UserID).Msg("scheduled sync failed")
		}
		cancel()
	}
}
