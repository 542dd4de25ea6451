// Package reconciler periodically sweeps payments that never finished
// fulfillment and pushes them back through the recovery path.
package reconciler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/planetaketo/storefront/app/models"
	"github.com/planetaketo/storefront/internal/pkg/env"
	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
)

const sweepTimeout = 2 * time.Minute

// Config controls the sweep cadence. An empty Schedule disables the
// reconciler entirely.
type Config struct {
	Schedule   string        // cron expression, e.g. "*/10 * * * *"
	MinAge     time.Duration // payments younger than this are left alone
	BatchLimit int
}

// ConfigFromEnv reads the reconciler settings. The reconciler stays off
// unless RECONCILER_SCHEDULE is set.
func ConfigFromEnv() Config {
	minAge := 15 * time.Minute
	if raw := env.GetEnv("RECONCILER_MIN_AGE_MINUTES", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			minAge = time.Duration(n) * time.Minute
		}
	}
	limit := 20
	if raw := env.GetEnv("RECONCILER_BATCH_LIMIT", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return Config{
		Schedule:   env.GetEnv("RECONCILER_SCHEDULE", ""),
		MinAge:     minAge,
		BatchLimit: limit,
	}
}

// Reconciler runs the stalled-payment sweep on a cron schedule.
type Reconciler struct {
	cron *cron.Cron
	repo fulfillment.Repository
	svc  *fulfillment.Service
	cfg  Config
}

func New(repo fulfillment.Repository, svc *fulfillment.Service, cfg Config) *Reconciler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Reconciler{cron: c, repo: repo, svc: svc, cfg: cfg}
}

// Start schedules the sweep. Returns false when the reconciler is disabled.
func (r *Reconciler) Start() (bool, error) {
	if r.cfg.Schedule == "" {
		return false, nil
	}
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.Sweep); err != nil {
		return false, err
	}
	r.cron.Start()
	log.Infof("[Reconciler] sweeping stalled payments on schedule %q (min age %s)", r.cfg.Schedule, r.cfg.MinAge)
	return true, nil
}

// Stop halts the scheduler and returns a context that closes once any
// in-flight sweep finishes.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

// Sweep retries every stalled payment once. A payment whose ledger entry has
// vanished is logged and skipped, it needs an operator.
func (r *Reconciler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	stalled, err := r.repo.ListIncompletePayments(time.Now().Add(-r.cfg.MinAge), r.cfg.BatchLimit)
	if err != nil {
		log.Errorf("[Reconciler] listing stalled payments failed: %v", err)
		return
	}
	if len(stalled) == 0 {
		return
	}
	log.Infof("[Reconciler] retrying %d stalled payment(s)", len(stalled))

	for _, p := range stalled {
		r.retryPayment(ctx, p)
		if ctx.Err() != nil {
			log.Warnf("[Reconciler] sweep aborted: %v", ctx.Err())
			return
		}
	}
}

func (r *Reconciler) retryPayment(ctx context.Context, p models.Payment) {
	result, err := r.svc.Retry(ctx, fulfillment.RetryInput{PaymentIntentID: p.StripePaymentID})
	switch {
	case errors.Is(err, fulfillment.ErrEventNotFound):
		log.Warnf("[Reconciler] payment %s has no webhook log, skipping", p.UUID)
	case err != nil:
		log.Errorf("[Reconciler] retry for payment %s failed: %v", p.UUID, err)
	default:
		log.Infof("[Reconciler] payment %s recovered (magic_link_created=%t email_sent=%t)",
			p.UUID, result.Actions.MagicLinkCreated, result.Actions.EmailSent)
	}
}
