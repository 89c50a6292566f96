package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SweepJobName identifies the expired challenge sweep
const SweepJobName = "otp-expired-sweep"

// Sweeper is the part of the OTP service the background job drives
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// New creates and starts a UTC scheduler whose job events are logged through the context logger
func New(ctx context.Context) (gocron.Scheduler, error) {
	zlog := zerolog.Ctx(ctx)

	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithEventListeners(
				gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
					zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job started")
				}),
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					zlog.Err(err).Str("job_name", jobName).Str("job_id", jobID.String()).Msg("error while running the job")
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					zlog.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("job panicked")
				}),
			),
		),
		gocron.WithLogger(logger{l: zlog}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// RegisterSweep runs sweeper every interval. A non-positive interval registers nothing.
func RegisterSweep(ctx context.Context, s gocron.Scheduler, sweeper Sweeper, interval time.Duration) (gocron.Job, error) {
	if interval <= 0 {
		return nil, nil
	}

	job, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) error {
			n, err := sweeper.SweepExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				zerolog.Ctx(ctx).Info().Int("swept", n).Msg("expired otp challenges removed")
			}
			return nil
		}),
		gocron.WithName(SweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register sweep job: %w", err)
	}
	return job, nil
}

type logger struct {
	l *zerolog.Logger
}

func (l logger) Debug(msg string, args ...any) {
	l.l.Debug().Msgf(msg, args...)
}
func (l logger) Error(msg string, args ...any) {
	l.l.Error().Msgf(msg, args...)
}
func (l logger) Info(msg string, args ...any) {
	l.l.Info().Msgf(msg, args...)
}
func (l logger) Warn(msg string, args ...any) {
	l.l.Warn().Msgf(msg, args...)
}
