package keymap

import (
	"sync"
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

// TestConcreteScenario1 reproduces spec.md §8 scenario 1 verbatim.
func TestConcreteScenario1(t *testing.T) {
	tr := New(nil)

	e1, code := tr.Register(0x123456789ABCDEF0)
	require.Equal(t, status.Success, code)
	require.GreaterOrEqual(t, e1, firstExternalKey)

	native, code := tr.LookupByExternal(e1)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint64(0x123456789ABCDEF0), native)

	ext, code := tr.LookupByNative(0x123456789ABCDEF0)
	require.Equal(t, status.Success, code)
	require.Equal(t, e1, ext)

	tr.Unregister(e1)

	_, code = tr.LookupByExternal(e1)
	require.Equal(t, status.NoEntry, code)
}

// TestConcreteScenario2 reproduces spec.md §8 scenario 2 verbatim.
func TestConcreteScenario2(t *testing.T) {
	tr := New(nil)
	e1, _ := tr.Register(0x1111111111111111)
	e2, _ := tr.Register(0x2222222222222222)
	require.NotEqual(t, e1, e2)
}

func TestRegister_BelowReservedRange(t *testing.T) {
	tr := New(nil)
	e, _ := tr.Register(1)
	require.GreaterOrEqual(t, e, firstExternalKey)
}

func TestUnregister_Idempotent(t *testing.T) {
	tr := New(nil)
	e, _ := tr.Register(42)
	tr.Unregister(e)
	require.NotPanics(t, func() { tr.Unregister(e) })
}

func TestShutdown_RemovesAll(t *testing.T) {
	tr := New(nil)
	tr.Register(1)
	tr.Register(2)
	tr.Shutdown()
	require.Equal(t, 0, tr.Len())
}

type countingMetrics struct {
	mu sync.Mutex
	n  int
}

func (m *countingMetrics) SetEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n = n
}

func TestMetrics_TracksEntryCount(t *testing.T) {
	m := &countingMetrics{}
	tr := New(m)
	e1, _ := tr.Register(10)
	require.Equal(t, 1, m.n)
	tr.Register(20)
	require.Equal(t, 2, m.n)
	tr.Unregister(e1)
	require.Equal(t, 1, m.n)
}

func TestConcurrentLookupsDoNotBlockAcrossDirections(t *testing.T) {
	tr := New(nil)
	const n = 200
	externals := make([]uint32, n)
	for i := 0; i < n; i++ {
		e, code := tr.Register(uint64(i) + 1000)
		require.Equal(t, status.Success, code)
		externals[i] = e
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = tr.LookupByExternal(externals[i])
		}()
		go func() {
			defer wg.Done()
			_, _ = tr.LookupByNative(uint64(i) + 1000)
		}()
	}
	wg.Wait()
}
