package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"propertyhub/server/internal/processor"
)

// RunType represents what triggered a sweep run
type RunType int

const (
	RunStartup RunType = iota
	RunScheduled
	RunManual
)

// String returns the string representation of a RunType
func (r RunType) String() string {
	switch r {
	case RunStartup:
		return "startup"
	case RunScheduled:
		return "scheduled"
	case RunManual:
		return "manual"
	default:
		return "unknown"
	}
}

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 6 * time.Hour

// TenantLister lists the tenants that own active properties
type TenantLister interface {
	Tenants() ([]string, error)
}

// Sweeper rescans one tenant's property pool
type Sweeper interface {
	Sweep(ctx context.Context, tenantID string) (processor.SweepResult, error)
}

// Scheduler runs periodic dedup sweeps over every tenant
type Scheduler struct {
	sweeper  Sweeper
	tenants  TenantLister
	logger   *logrus.Logger
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	jobMutex sync.Mutex // one run at a time
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(sweeper Sweeper, tenants TenantLister, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	if interval <= 0 {
		logger.WithField("interval", interval.String()).Warn("Invalid sweep interval, using default")
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sweeper:  sweeper,
		tenants:  tenants,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs a startup sweep and then one sweep per interval
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.RunOnce(s.ctx, RunStartup)
	}()
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(s.ctx, RunScheduled)
		}
	}
}

// RunOnce sweeps every tenant sequentially. It returns false without sweeping when
// another run is still in progress. A failing tenant is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context, run RunType) ([]processor.SweepResult, bool) {
	if !s.jobMutex.TryLock() {
		s.logger.WithField("run_type", run.String()).Debug("Skipping sweep run while another is in progress")
		return nil, false
	}
	defer s.jobMutex.Unlock()

	tenants, err := s.tenants.Tenants()
	if err != nil {
		s.logger.WithError(err).WithField("run_type", run.String()).Error("Failed to list tenants for sweep")
		return nil, true
	}

	s.logger.WithFields(logrus.Fields{
		"run_type": run.String(),
		"tenants":  len(tenants),
	}).Info("Starting sweep run")

	results := make([]processor.SweepResult, 0, len(tenants))
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			s.logger.WithField("run_type", run.String()).Info("Sweep run cancelled")
			break
		}

		result, err := s.sweeper.Sweep(ctx, tenant)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenant,
				"run_type":  run.String(),
			}).Error("Sweep failed")
			continue
		}
		results = append(results, result)
	}

	s.logger.WithFields(logrus.Fields{
		"run_type": run.String(),
		"swept":    len(results),
	}).Info("Completed sweep run")
	return results, true
}

// Stop cancels any sweep in flight and waits for the scheduler to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
	})
	s.wg.Wait()
}
