package models

import (
	"time"

	"github.com/google/uuid"
)

// Application statuses.
const (
	ApplicationApplied  = "applied"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// Application is a worker's offer on an open gig. Acceptance is finalized at
// payment verification: the accepted application's worker becomes the assigned
// worker and every rival application is rejected.
type Application struct {
	ID        uuid.UUID `json:"id"`
	GigID     uuid.UUID `json:"gig_id"`
	WorkerID  uuid.UUID `json:"worker_id"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
