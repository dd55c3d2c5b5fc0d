package scraper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhound/internal/models"
)

func TestTracker_SnapshotsAreConsistent(t *testing.T) {
	tr := NewTracker("s1", []byte(`{}`), newFakeClock())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				tr.Update(func(c *models.SessionCounts) {
					c.PostingsExtracted++
					c.UniqueAfterDedup++
				})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 2000 {
			s := tr.Snapshot()
			if s.Counts.PostingsExtracted != s.Counts.UniqueAfterDedup {
				t.Errorf("torn snapshot: %+v", s.Counts)
				return
			}
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, 4000, tr.Snapshot().Counts.PostingsExtracted)
}

func TestTracker_FinishOnce(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("s1", nil, clock)

	s := tr.Snapshot()
	assert.Equal(t, models.StatusRunning, s.Status)
	assert.Nil(t, s.EndTime)
	assert.False(t, tr.Finish(models.StatusRunning, ""), "running is not terminal")

	require.True(t, tr.Finish(models.StatusCancelled, "stop"))
	assert.False(t, tr.Finish(models.StatusFailed, "late"))

	tr.Update(func(c *models.SessionCounts) { c.JobsPersisted = 99 })

	s = tr.Snapshot()
	assert.Equal(t, models.StatusCancelled, s.Status)
	assert.Equal(t, "stop", s.ErrorMessage)
	require.NotNil(t, s.EndTime)
	assert.Equal(t, clock.Now(), *s.EndTime)
	assert.Zero(t, s.Counts.JobsPersisted)
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := NewTracker("s1", []byte(`{"a":1}`), newFakeClock())
	s := tr.Snapshot()
	s.ConfigSnapshot[2] = 'b'
	s.Counts.URLsFound = 5

	again := tr.Snapshot()
	assert.JSONEq(t, `{"a":1}`, string(again.ConfigSnapshot))
	assert.Zero(t, again.Counts.URLsFound)
}
