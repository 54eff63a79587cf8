package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hallway-app/hallway/internal/pkg/billing"
	"github.com/hallway-app/hallway/internal/pkg/database"
)

// processBillingEventJob reconciles one billing delivery. Normalization
// errors are terminal; store errors are returned so the queue retries the
// idempotent job. The processing outcome is written back to the stored audit
// row either way.
func (q *Queue) processBillingEventJob(ctx context.Context, job *Job) error {
	payload, err := BillingEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid billing event payload: %w", err)
	}

	svc := billing.NewServiceFromDB(database.GetDB())

	envelope, err := billing.ParseEnvelope([]byte(payload.RawJSON))
	if err != nil {
		log.Warnf("[JobQueue] Dropping unparsable billing event (job %s): %v", job.ID, err)
		return svc.MarkWebhookProcessed(payload.WebhookEventID, err)
	}

	bundle, err := billing.Normalize(envelope, payload.ReceivedAt)
	if err != nil {
		log.Warnf("[JobQueue] Dropping unnormalizable billing event %s (job %s): %v", envelope.EventID, job.ID, err)
		return svc.MarkWebhookProcessed(payload.WebhookEventID, err)
	}

	if procErr := svc.ProcessBundle(ctx, bundle); procErr != nil {
		// Record the failure but keep the job retryable.
		if markErr := svc.MarkWebhookProcessed(payload.WebhookEventID, procErr); markErr != nil {
			log.Errorf("[JobQueue] Failed to record processing error for webhook event %d: %v", payload.WebhookEventID, markErr)
		}
		return procErr
	}

	return svc.MarkWebhookProcessed(payload.WebhookEventID, nil)
}
