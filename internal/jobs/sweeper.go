package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"optiadmin/internal/domain"
	"optiadmin/internal/service/scheduling"
)

type schedulingService interface {
	Transition(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error)
}

type appointmentLister interface {
	ListEndedBefore(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error)
}

// Sweeper periodically reconciles appointment statuses with the clock:
// bookings nobody showed up for become no_show after a grace window, and
// in-progress visits past their end become completed.
type Sweeper struct {
	appts appointmentLister
	svc   schedulingService
	log   *slog.Logger
	grace time.Duration
	clock scheduling.Clock
}

func NewSweeper(appts appointmentLister, svc schedulingService, log *slog.Logger, grace time.Duration, clock scheduling.Clock) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = scheduling.SystemClock()
	}
	return &Sweeper{
		appts: appts,
		svc:   svc,
		log:   log.With(slog.String("component", "jobs.sweeper")),
		grace: grace,
		clock: clock,
	}
}

func (s *Sweeper) Register(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error("sweep failed", slog.Any("err", err))
		}
	})
	return err
}

func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	if err := s.transitionEnded(ctx, now.Add(-s.grace),
		[]domain.StatusName{domain.StatusScheduled, domain.StatusConfirmed},
		domain.StatusNoShow,
	); err != nil {
		return err
	}

	return s.transitionEnded(ctx, now,
		[]domain.StatusName{domain.StatusInProgress},
		domain.StatusCompleted,
	)
}

func (s *Sweeper) transitionEnded(ctx context.Context, cutoff time.Time, from []domain.StatusName, to domain.StatusName) error {
	appts, err := s.appts.ListEndedBefore(ctx, cutoff, from)
	if err != nil {
		return err
	}
	for _, a := range appts {
		if _, err := s.svc.Transition(ctx, a.ID, to); err != nil {
			// Keep sweeping; the next run picks the appointment up again.
			s.log.Warn("sweep transition failed",
				slog.String("appointment_id", a.ID.String()),
				slog.String("to", string(to)),
				slog.Any("err", err),
			)
			continue
		}
		s.log.Info("appointment swept",
			slog.String("appointment_id", a.ID.String()),
			slog.String("to", string(to)),
		)
	}
	return nil
}
