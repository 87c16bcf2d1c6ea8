package progress

import (
	"testing"
	"time"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/completion"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/stretchr/testify/require"
)

func newCQ(t *testing.T) (*fabricsim.Provider, fabric.CQHandleNative) {
	t.Helper()
	sim := fabricsim.New()
	info := &fabric.Info{ProviderName: "cxi", NodeName: "dev0"}
	fh, err := sim.OpenFabric(info)
	require.NoError(t, err)
	dh, err := sim.OpenDomain(fh, info)
	require.NoError(t, err)
	cq, err := sim.OpenCQ(dh, fabric.CQAttr{Capacity: 16, Format: fabric.CQFormatData})
	require.NoError(t, err)
	return sim, cq
}

type countingMetrics struct {
	batches, empties, backoffs, breakerOpens int
}

func (m *countingMetrics) PollBatch(n int)   { m.batches++ }
func (m *countingMetrics) PollEmpty()        { m.empties++ }
func (m *countingMetrics) Backoff(string)    { m.backoffs++ }
func (m *countingMetrics) BreakerOpen()      { m.breakerOpens++ }

func TestDriver_DeliversSeededCompletions(t *testing.T) {
	sim, cq := newCQ(t)
	sim.PushTo(cq, fabric.CompletionEntry{Context: 1, Length: 64, OpFlags: fabric.OpFlagSend})
	sim.PushTo(cq, fabric.CompletionEntry{Context: 2, Length: 128, OpFlags: fabric.OpFlagRecv})

	out := make(chan completion.WorkCompletion, 4)
	metrics := &countingMetrics{}
	d := NewDriver("dev0", sim, cq, out, Config{CPU: -1, Metrics: metrics})
	d.Start()
	defer d.Stop(time.Second)

	var got []completion.WorkCompletion
	for len(got) < 2 {
		select {
		case wc := <-out:
			got = append(got, wc)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for completions")
		}
	}

	require.Equal(t, uint64(1), got[0].RequestID)
	require.Equal(t, uint64(2), got[1].RequestID)
}

func TestDriver_StopIsIdempotentAndBounded(t *testing.T) {
	sim, cq := newCQ(t)
	out := make(chan completion.WorkCompletion, 4)
	d := NewDriver("dev0", sim, cq, out, Config{CPU: -1})
	d.Start()

	d.Stop(time.Second)
	require.NotPanics(t, func() { d.Stop(time.Second) })
}

func TestDriver_SlowConsumerDoesNotDropCompletions(t *testing.T) {
	sim, cq := newCQ(t)
	for i := uint64(1); i <= 5; i++ {
		sim.PushTo(cq, fabric.CompletionEntry{Context: i, Length: 8})
	}

	// Unbuffered: the driver must stash into its single pending slot rather
	// than drop completions while the consumer isn't ready yet.
	out := make(chan completion.WorkCompletion)
	d := NewDriver("dev0", sim, cq, out, Config{CPU: -1})
	d.Start()
	defer d.Stop(time.Second)

	time.Sleep(20 * time.Millisecond)

	seen := make(map[uint64]bool)
	for len(seen) < 5 {
		select {
		case wc := <-out:
			seen[wc.RequestID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only saw %d/5 completions", len(seen))
		}
	}
}
