package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// streamBufferSize bounds each job stream. When a subscriber falls this far
// behind, older events are dropped rather than blocking the publisher.
const streamBufferSize = 256

// Service implements EventService with per-job ordered streams plus a
// global fan-out for cross-job subscribers (websocket, metrics).
type Service struct {
	jobStreams  map[string]chan models.ProgressEvent
	globals     map[int]chan models.ProgressEvent
	nextGlobal  int
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		jobStreams: make(map[string]chan models.ProgressEvent),
		globals:    make(map[int]chan models.ProgressEvent),
		logger:     logger,
	}
}

// Publish appends an event to its job stream and fans it out to global
// subscribers. Never blocks: full channels drop the oldest pending event.
func (s *Service) Publish(event models.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Sends happen under the read lock; CloseJob and unsubscribe take the
	// write lock, so a channel is never closed mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stream, ok := s.jobStreams[event.JobID]; ok {
		s.send(stream, event)
	}
	for _, ch := range s.globals {
		s.send(ch, event)
	}
}

func (s *Service) send(ch chan models.ProgressEvent, event models.ProgressEvent) {
	select {
	case ch <- event:
	default:
		// Drop the oldest event to make room, keeping the stream live.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
			s.logger.Warn().
				Str("job_id", event.JobID).
				Str("event_type", string(event.Type)).
				Msg("Progress event dropped, stream full")
		}
	}
}

// Stream returns the job's event channel, creating it on first use.
func (s *Service) Stream(jobID string) <-chan models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.jobStreams[jobID]; ok {
		return ch
	}
	ch := make(chan models.ProgressEvent, streamBufferSize)
	s.jobStreams[jobID] = ch

	s.logger.Debug().
		Str("job_id", jobID).
		Msg("Progress stream opened")

	return ch
}

// CloseJob closes the job's stream. Idempotent.
func (s *Service) CloseJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.jobStreams[jobID]; ok {
		close(ch)
		delete(s.jobStreams, jobID)
		s.logger.Debug().
			Str("job_id", jobID).
			Msg("Progress stream closed")
	}
}

// SubscribeAll receives every event across jobs until unsubscribed.
func (s *Service) SubscribeAll() (<-chan models.ProgressEvent, func()) {
	s.mu.Lock()
	id := s.nextGlobal
	s.nextGlobal++
	ch := make(chan models.ProgressEvent, streamBufferSize)
	s.globals[id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.globals[id]; ok {
			delete(s.globals, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}
