package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

func TestPublishOrderPreserved(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	stream := svc.Stream("job_1")
	for i := 0; i < 5; i++ {
		svc.Publish(models.ProgressEvent{
			JobID:   "job_1",
			Type:    models.EventSearchPage,
			Percent: i,
		})
	}
	svc.CloseJob("job_1")

	var got []int
	for event := range stream {
		got = append(got, event.Percent)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPublishSetsTimestamp(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	stream := svc.Stream("job_1")

	svc.Publish(models.ProgressEvent{JobID: "job_1", Type: models.EventJobStarted})
	svc.CloseJob("job_1")

	event := <-stream
	assert.False(t, event.Timestamp.IsZero())
}

func TestPublishWithoutStreamDoesNotBlock(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	done := make(chan struct{})
	go func() {
		svc.Publish(models.ProgressEvent{JobID: "nobody-listening", Type: models.EventJobStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no stream open")
	}
}

func TestFullStreamDropsOldest(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	stream := svc.Stream("job_1")

	// Overfill without a reader; the stream must stay live and keep the
	// newest events.
	for i := 0; i < 300; i++ {
		svc.Publish(models.ProgressEvent{JobID: "job_1", Type: models.EventSearchPage, Percent: i})
	}
	svc.CloseJob("job_1")

	var last int
	count := 0
	for event := range stream {
		last = event.Percent
		count++
	}
	assert.Equal(t, 299, last)
	assert.LessOrEqual(t, count, 256)
}

func TestCloseJobIdempotent(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	svc.Stream("job_1")

	svc.CloseJob("job_1")
	svc.CloseJob("job_1")
	svc.CloseJob("never-existed")
}

func TestSubscribeAllReceivesAcrossJobs(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	all, unsubscribe := svc.SubscribeAll()
	defer unsubscribe()

	svc.Stream("job_a")
	svc.Stream("job_b")
	svc.Publish(models.ProgressEvent{JobID: "job_a", Type: models.EventJobStarted})
	svc.Publish(models.ProgressEvent{JobID: "job_b", Type: models.EventJobCompleted})

	first := <-all
	second := <-all
	assert.Equal(t, "job_a", first.JobID)
	assert.Equal(t, "job_b", second.JobID)
}

func TestUnsubscribeClosesGlobalChannel(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	all, unsubscribe := svc.SubscribeAll()
	unsubscribe()
	// Double unsubscribe is safe.
	unsubscribe()

	_, open := <-all
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	svc.Publish(models.ProgressEvent{JobID: "job_x", Type: models.EventJobStarted})
}
