package controllers

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/hallway-app/hallway/internal/pkg/env"
	"github.com/hallway-app/hallway/internal/pkg/jobqueue"
	"github.com/hallway-app/hallway/internal/pkg/rooms"
)

// enqueueRoomEventJob schedules background reconciliation of a room-server
// delivery. Swapped out in tests.
var enqueueRoomEventJob = func(payload jobqueue.RoomEventJobPayload) error {
	_, err := jobqueue.GetManager().EnqueueRoomEventJob(payload)
	return err
}

// HandleRoomWebhook receives room-server event deliveries. The event is
// normalized just enough to reject unusable payloads, then handed to the
// background queue and acknowledged.
func HandleRoomWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("ROOM_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Rooms] ROOM_WEBHOOK_SECRET is not configured")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		log.Warnf("[Rooms] Rejected webhook with invalid bearer token from %s", c.IP())
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	rawBody := make([]byte, len(c.BodyRaw()))
	copy(rawBody, c.BodyRaw())

	receivedAt := time.Now()
	ev, err := rooms.Normalize(rawBody, receivedAt)
	if err != nil {
		log.Warnf("[Rooms] Rejected malformed room event: %v", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if ev.Ignored {
		// Unknown event types are acknowledged and dropped.
		return c.SendStatus(fiber.StatusOK)
	}

	if err := enqueueRoomEventJob(jobqueue.RoomEventJobPayload{
		RawJSON:    string(rawBody),
		ReceivedAt: receivedAt,
	}); err != nil {
		log.Errorf("[Rooms] Failed to enqueue room event: %v", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusOK)
}
