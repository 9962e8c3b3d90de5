package interfaces

import "github.com/jeiths2202/ims-crawler/internal/models"

// EventService is the in-process progress event bus. Each job owns an
// ordered stream; slow subscribers never block publishers.
type EventService interface {
	// Publish appends an event to its job's stream and fans it out to
	// global subscribers.
	Publish(event models.ProgressEvent)
	// Stream returns a channel carrying the job's events in publish order.
	// The channel closes when the job's stream is closed.
	Stream(jobID string) <-chan models.ProgressEvent
	// CloseJob closes the job's stream and releases its subscribers.
	CloseJob(jobID string)
	// SubscribeAll receives every published event across jobs. Returns the
	// channel and an unsubscribe func.
	SubscribeAll() (<-chan models.ProgressEvent, func())
}
