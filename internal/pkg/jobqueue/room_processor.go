package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hallway-app/hallway/internal/pkg/database"
	"github.com/hallway-app/hallway/internal/pkg/rooms"
)

// processRoomEventJob reconciles one room-server delivery. Normalization
// errors are terminal (the payload will not get better on retry); store
// errors are returned so the queue retries the idempotent job.
func (q *Queue) processRoomEventJob(job *Job) error {
	payload, err := RoomEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid room event payload: %w", err)
	}

	ev, err := rooms.Normalize([]byte(payload.RawJSON), payload.ReceivedAt)
	if err != nil {
		// The ingress already validated this; a failure here means the
		// payload is malformed beyond use. Drop it rather than retry.
		log.Warnf("[JobQueue] Dropping unnormalizable room event (job %s): %v", job.ID, err)
		return nil
	}
	if ev.Ignored {
		return nil
	}

	svc := rooms.NewServiceFromDB(database.GetDB())
	return svc.ProcessEvent(ev)
}
