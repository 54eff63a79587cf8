package jobqueue

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hallway-app/hallway/internal/pkg/env"
)

// Manager manages the job queue system
type Manager struct {
	queue *Queue
	mu    sync.Mutex
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the singleton job queue manager
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := 3
		if v := env.GetEnv("JOB_WORKERS", ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				workers = n
			}
		}
		manager = &Manager{
			queue: NewQueue(workers),
		}
	})
	return manager
}

// Start starts the job queue workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Info("[JobQueue] Starting job queue manager")
	m.queue.Start()
}

// Stop stops the job queue workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Info("[JobQueue] Stopping job queue manager")
	m.queue.Stop()
}

// GetQueue returns the underlying queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// EnqueueRoomEventJob enqueues a raw room-server delivery for background
// reconciliation.
func (m *Manager) EnqueueRoomEventJob(payload RoomEventJobPayload) (*Job, error) {
	return m.queue.EnqueueJob(JobTypeRoomEvent, payload.ToMap())
}

// EnqueueBillingEventJob enqueues a raw billing delivery for background
// reconciliation.
func (m *Manager) EnqueueBillingEventJob(payload BillingEventJobPayload) (*Job, error) {
	return m.queue.EnqueueJob(JobTypeBillingEvent, payload.ToMap())
}
