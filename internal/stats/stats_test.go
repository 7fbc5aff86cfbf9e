package stats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectAggregatesByKind(t *testing.T) {
	c := NewCollector()
	c.Record(Outcome{Kind: "critique", Source: "on-device", Duration: 100 * time.Millisecond})
	c.Record(Outcome{Kind: "critique", Source: "cloud", FellBack: true, Duration: 300 * time.Millisecond})
	c.Record(Outcome{Kind: "palette", Source: "cloud", Duration: 200 * time.Millisecond})
	c.Record(Outcome{Kind: "recipes", FellBack: true, Err: errors.New("cloud failed")})

	s := c.Collect()
	assert.Equal(t, int64(4), s.RequestCount)
	assert.Equal(t, int64(1), s.OnDeviceCount)
	assert.Equal(t, int64(2), s.CloudCount)
	assert.Equal(t, int64(2), s.FallbackCount)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.InDelta(t, 33.33, s.LocalRate, 0.01)

	critique := s.Kinds["critique"]
	assert.Equal(t, int64(2), critique.Requests)
	assert.InDelta(t, 200, critique.AvgLatencyMs, 0.001)
	assert.Equal(t, []string{"critique", "palette", "recipes"}, s.KindNames())
}

func TestCollectEmpty(t *testing.T) {
	s := NewCollector().Collect()
	require.NotNil(t, s)
	assert.Zero(t, s.RequestCount)
	assert.Zero(t, s.LocalRate)
	assert.Positive(t, s.Goroutines)
}

func TestRecordConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(Outcome{Kind: "palette", Source: "cloud"})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(30), c.Collect().Kinds["palette"].Cloud)
}
