package datadog

import (
	"testing"

	"sand/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls   []call
	flushed int
	closed  bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	_, err := NewBackend(Config{})
	require.Error(t, err)
}

func TestNewBackend_UDP(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Tags: []string{"env:test"}})
	require.NoError(t, err)
	b.IncCounter(metrics.TransformRuns, 1, metrics.Labels{"kind": "map"})
	assert.NoError(t, b.Close())
}

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.TransformRows, 3, metrics.Labels{"outcome": "ok", "kind": "split"})
	b.ObserveHistogram(metrics.TransformDuration, 0.25, metrics.Labels{"status": "success", "kind": "split"})
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	require.Len(t, fc.calls, 2)
	assert.Equal(t, call{"count", metrics.TransformRows, 3, []string{"kind:split", "outcome:ok"}}, fc.calls[0])
	assert.Equal(t, call{"histogram", metrics.TransformDuration, 0.25, []string{"kind:split", "status:success"}}, fc.calls[1])
	assert.Equal(t, 1, fc.flushed)
	assert.True(t, fc.closed)
}

func TestLabelsToTags_Empty(t *testing.T) {
	assert.Nil(t, labelsToTags(nil))
}
