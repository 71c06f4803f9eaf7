package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shoptok/internal/clock"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobAutoRelease      = "escrow_auto_release"
	JobCustodyReconcile = "custody_reconcile"
)

var (
	ErrInvalidConfig     = errors.New("scheduler: invalid config")
	ErrCustodyImbalanced = errors.New("custody_imbalanced")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Escrow     escrowdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Scheduler runs the background settlement jobs. It mutates purchases only
// through the escrow service, so every rule a caller is held to applies to
// the keeper as well.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	escrow     escrowdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Escrow == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		escrow:     p.Escrow,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}

	err := fn(ctx)
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.obsMetrics.ObserveJob(name, err, time.Since(start), isTimeout)
	s.obsMetrics.AddJobProcessed(name, run.processedCount)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobAutoRelease, s.AutoReleaseJob},
		{JobCustodyReconcile, s.CustodyReconcileJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == jobName {
			return true
		}
	}
	return false
}

// AutoReleaseJob completes shipped purchases whose escrow period has
// elapsed, paying the seller on the buyer's behalf. Purchases that moved
// on between the scan and the update are skipped.
func (s *Scheduler) AutoReleaseJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	due, err := s.escrow.ListReleasable(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, purchase := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.escrow.UpdatePurchaseStatus(ctx, escrowdomain.UpdateStatusRequest{
			Caller:     s.cfg.KeeperID,
			PurchaseID: purchase.ID,
			Status:     escrowdomain.StatusCompleted,
		})
		switch {
		case err == nil:
			run.AddProcessed(1)
			s.logger(ctx).Info("scheduler.release.completed",
				zap.Int64("purchase_id", res.PurchaseID),
				zap.Int64("seller_proceeds", res.Purchase.SellerProceeds),
				zap.Int64("platform_fee", res.Purchase.PlatformFee),
				zap.Time("as_of", s.clock.Now()),
			)
		case errors.Is(err, escrowdomain.ErrIllegalTransition), errors.Is(err, escrowdomain.ErrEscrowPeriodActive):
			run.AddSkipped(1)
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logReleaseError(ctx, run, purchase.ID, err)
		}
	}
	return nil
}

// CustodyReconcileJob checks that custody still equals the sum owed to
// open purchases.
func (s *Scheduler) CustodyReconcileJob(ctx context.Context) error {
	summary, err := s.escrow.Summary(ctx)
	if err != nil {
		return err
	}
	if !summary.Balanced {
		return fmt.Errorf("%w: custody %d, outstanding %d",
			ErrCustodyImbalanced, summary.CustodyBalance, summary.OutstandingAmount)
	}
	jobRunFromContext(ctx).AddProcessed(int(summary.OpenPurchases))
	return nil
}
