package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/models"
)

type blockingIngester struct {
	calls   int32
	release chan struct{}
	started chan struct{}
	err     error
}

func (b *blockingIngester) IngestDocuments(ctx context.Context, dir string) (*models.IngestSummary, error) {
	atomic.AddInt32(&b.calls, 1)
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return nil, b.err
	}
	return &models.IngestSummary{Unchanged: 1}, nil
}

func TestRescan_RecordsLastRun(t *testing.T) {
	ingester := &blockingIngester{}
	s := NewService(ingester, "./docs", arbor.NewLogger())

	summary, ran := s.Rescan(context.Background())
	require.True(t, ran)
	assert.Equal(t, 1, summary.Unchanged)

	lastRun, lastErr := s.LastRun()
	assert.NotNil(t, lastRun)
	assert.Empty(t, lastErr)
}

func TestRescan_RecordsFailure(t *testing.T) {
	s := NewService(&blockingIngester{err: errors.New("disk gone")}, "./docs", arbor.NewLogger())

	_, ran := s.Rescan(context.Background())
	require.True(t, ran)

	_, lastErr := s.LastRun()
	assert.Equal(t, "disk gone", lastErr)
}

func TestRescan_NeverOverlaps(t *testing.T) {
	ingester := &blockingIngester{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewService(ingester, "./docs", arbor.NewLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Rescan(context.Background())
	}()
	<-ingester.started

	_, ran := s.Rescan(context.Background())
	assert.False(t, ran)

	close(ingester.release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ingester.calls))

	// free again once the first run finished
	_, ran = s.Rescan(context.Background())
	assert.True(t, ran)
}

func TestStart_ValidatesSchedule(t *testing.T) {
	s := NewService(&blockingIngester{}, "./docs", arbor.NewLogger())

	assert.Error(t, s.Start("not a schedule"))
	assert.False(t, s.IsRunning())
}

func TestStart_RejectsSecondStart(t *testing.T) {
	s := NewService(&blockingIngester{}, "./docs", arbor.NewLogger())

	require.NoError(t, s.Start("@every 1h"))
	defer s.Stop()

	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start("@every 1h"))
}

func TestStop_Idempotent(t *testing.T) {
	s := NewService(&blockingIngester{}, "./docs", arbor.NewLogger())
	require.NoError(t, s.Start("@hourly"))

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestStart_AfterStopSchedulesOnce(t *testing.T) {
	s := NewService(&blockingIngester{}, "./docs", arbor.NewLogger())

	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
	require.NoError(t, s.Start("@every 1h"))
	defer s.Stop()

	s.mu.Lock()
	entries := s.cron.Entries()
	s.mu.Unlock()
	assert.Len(t, entries, 1)
}

func TestTriggerNow_RunsInBackground(t *testing.T) {
	ingester := &blockingIngester{started: make(chan struct{}, 1)}
	s := NewService(ingester, "./docs", arbor.NewLogger())

	s.TriggerNow()

	select {
	case <-ingester.started:
	case <-time.After(5 * time.Second):
		t.Fatal("rescan did not start")
	}
	assert.Eventually(t, func() bool {
		lastRun, _ := s.LastRun()
		return lastRun != nil
	}, 5*time.Second, 10*time.Millisecond)
}
