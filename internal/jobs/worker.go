package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/restocklab/go-restock-backend/internal/services"
)

// Runner is the submission side of the job layer. With a queue attached it
// enqueues; with Queue nil it degrades to executing the work inline, which is
// the single-process default.
type Runner struct {
	Queue    *Queue
	Webhooks *services.WebhookService
	Demand   *services.DemandService
}

// SubmitInventoryUpdate queues (or runs) the processing of one inventory
// webhook. Inline execution preserves the boundary contract: errors are
// absorbed inside the webhook service, never returned to the platform.
func (r *Runner) SubmitInventoryUpdate(ctx context.Context, shopDomain string, payload services.InventoryUpdatePayload) error {
	if r.Queue == nil {
		r.Webhooks.HandleInventoryUpdate(ctx, shopDomain, payload)
		return nil
	}
	return r.Queue.Enqueue(ctx, Job{
		Type:       TypeInventoryUpdate,
		ShopDomain: shopDomain,
		VariantID:  payload.VariantID,
		Quantity:   payload.Quantity,
	})
}

// SubmitNotify queues a single notification. Inline mode calls Notify
// directly and returns its business error to the caller.
func (r *Runner) SubmitNotify(ctx context.Context, requestID string) error {
	if r.Queue == nil {
		_, err := r.Demand.Notify(ctx, requestID)
		return err
	}
	return r.Queue.Enqueue(ctx, Job{Type: TypeNotifyRequest, RequestID: requestID})
}

// Worker consumes the queue and runs the periodic expired-link sweep.
type Worker struct {
	Queue    *Queue
	Webhooks *services.WebhookService
	Demand   *services.DemandService
	Recovery *services.RecoveryService

	PollTimeout time.Duration
	SweepEvery  time.Duration
	Retention   time.Duration

	wg sync.WaitGroup
}

// Start launches the consume loop and the sweep ticker. Both stop when ctx is
// cancelled; Wait blocks until they have drained.
func (w *Worker) Start(ctx context.Context) {
	if w.Queue != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx)
		}()
	}
	if w.Recovery != nil && w.SweepEvery > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.sweep(ctx)
		}()
	}
}

// Wait blocks until all worker goroutines have exited.
func (w *Worker) Wait() { w.wg.Wait() }

// Dequeue failures back off exponentially so a Redis outage does not produce
// a once-per-second error firehose for its whole duration.
const (
	initialDequeueBackoff = time.Second
	maxDequeueBackoff     = 30 * time.Second
)

func nextBackoff(cur time.Duration) time.Duration {
	cur *= 2
	if cur > maxDequeueBackoff {
		cur = maxDequeueBackoff
	}
	return cur
}

func (w *Worker) consume(ctx context.Context) {
	log.Info().Msg("job worker started")
	backoff := initialDequeueBackoff
	for {
		if ctx.Err() != nil {
			log.Info().Msg("job worker stopped")
			return
		}
		job, err := w.Queue.Dequeue(ctx, w.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("job worker stopped")
				return
			}
			log.Error().Err(err).Dur("backoff", backoff).Msg("job dequeue failed; backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialDequeueBackoff
		if job == nil {
			continue
		}
		w.handle(ctx, *job)
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	switch job.Type {
	case TypeInventoryUpdate:
		w.Webhooks.HandleInventoryUpdate(ctx, job.ShopDomain, services.InventoryUpdatePayload{
			VariantID: job.VariantID,
			Quantity:  job.Quantity,
		})
	case TypeNotifyRequest:
		if _, err := w.Demand.Notify(ctx, job.RequestID); err != nil {
			log.Warn().Err(err).Str("request_id", job.RequestID).Msg("queued notify did not complete")
		}
	default:
		log.Warn().Str("type", job.Type).Msg("unknown job type dropped")
	}
}

func (w *Worker) sweep(ctx context.Context) {
	ticker := time.NewTicker(w.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Recovery.SweepExpired(ctx, w.Retention); err != nil {
				log.Error().Err(err).Msg("expired-link sweep failed")
			}
		}
	}
}
