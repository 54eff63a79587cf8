package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/hallway-app/hallway/internal/pkg/billing"
	"github.com/hallway-app/hallway/internal/pkg/database"
	"github.com/hallway-app/hallway/internal/pkg/env"
	"github.com/hallway-app/hallway/internal/pkg/jobqueue"
)

// enqueueBillingEventJob schedules background reconciliation of a stored
// billing delivery. Swapped out in tests.
var enqueueBillingEventJob = func(payload jobqueue.BillingEventJobPayload) error {
	_, err := jobqueue.GetManager().EnqueueBillingEventJob(payload)
	return err
}

// HandlePaddleWebhook receives Paddle webhook deliveries. The request is
// acknowledged as soon as the delivery is verified and stored; reconciliation
// runs in the background so provider timeouts never depend on our datastore.
func HandlePaddleWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("PADDLE_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Billing] PADDLE_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_not_configured"})
	}

	// BodyRaw's buffer is only valid during the handler; copy before the
	// payload outlives the request.
	rawBody := make([]byte, len(c.BodyRaw()))
	copy(rawBody, c.BodyRaw())

	if !billing.VerifyPaddleWebhookSignature(rawBody, c.Get("Paddle-Signature"), secret) {
		log.Warnf("[Billing] Rejected webhook with invalid signature from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	envelope, err := billing.ParseEnvelope(rawBody)
	if err != nil {
		log.Warnf("[Billing] Rejected malformed webhook payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	created, stored, err := svc.RecordWebhookEvent(envelope.EventID, envelope.EventType, rawBody, true)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// At-least-once delivery replayed an event we already hold.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "duplicate": true})
	}

	if !billing.IsAcceptedEventType(envelope.EventType) {
		_ = svc.MarkWebhookProcessed(stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "ignored": true})
	}

	if err := enqueueBillingEventJob(jobqueue.BillingEventJobPayload{
		WebhookEventID: stored.ID,
		RawJSON:        string(rawBody),
		ReceivedAt:     time.Now(),
	}); err != nil {
		log.Errorf("[Billing] Failed to enqueue webhook event %s: %v", envelope.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "enqueue_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
