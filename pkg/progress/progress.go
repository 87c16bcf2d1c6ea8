// Package progress implements the progress engine (spec.md §4.6): one
// driver goroutine per device that repeatedly polls its completion queue
// and hands translated completions off to callers.
package progress

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/completion"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// DefaultBatchSize is the number of completions drained per CQRead call
// (spec.md §4.6).
const DefaultBatchSize = 16

// Metrics is the optional metrics sink for a driver. A nil Metrics is
// valid; every method becomes a no-op, following the nil-safe pattern used
// throughout this module (pkg/keymap.Metrics, pkg/mr.CacheMetrics).
type Metrics interface {
	PollBatch(n int)
	PollEmpty()
	Backoff(kind string)
	BreakerOpen()
}

// Config configures a Driver.
type Config struct {
	// BatchSize is the number of completions drained per CQRead call.
	// Zero selects DefaultBatchSize.
	BatchSize int
	// CPU pins the driver goroutine's OS thread to this CPU. Negative
	// disables pinning (spec.md §4.6's round-robin CPU assignment is the
	// caller's responsibility; Driver only applies whichever index it is
	// given).
	CPU int
	// StopTimeout is not read by Driver: Stop bounds its wait by its own
	// timeout argument, and a non-positive argument selects 5 seconds.
	StopTimeout time.Duration
	Metrics     Metrics
}

type drainResult struct {
	n    int
	code status.Code
}

// Driver owns the poll loop for one device's completion queue. Grounded on
// the teacher's pkg/payload/transfer.TransferQueue worker loop: the same
// stopCh/stoppedCh/WaitGroup cooperative-shutdown shape, generalized from a
// pool of N upload workers to a single polling goroutine per device.
type Driver struct {
	name      string
	provider  fabric.Provider
	cq        fabric.CQHandleNative
	out       chan<- completion.WorkCompletion
	batchSize int
	cpu       int
	metrics   Metrics

	breaker        *gobreaker.CircuitBreaker
	breakerTimeout time.Duration
	errBackoff     backoff.BackOff

	stopCh    chan struct{}
	stoppedCh chan struct{}
	wg        sync.WaitGroup

	pending *completion.WorkCompletion
}

// NewDriver creates a Driver for one device's CQ. Completions are delivered
// on out; the caller must keep draining out for the lifetime of the Driver.
// The Driver closes out when its polling goroutine exits.
func NewDriver(name string, provider fabric.Provider, cq fabric.CQHandleNative, out chan<- completion.WorkCompletion, cfg Config) *Driver {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Millisecond
	eb.MaxInterval = 5 * time.Millisecond
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0 // never stop retrying; the driver lives until Stop

	d := &Driver{
		name:      name,
		provider:  provider,
		cq:        cq,
		out:       out,
		batchSize: batchSize,
		cpu:       cfg.CPU,
		metrics:   cfg.Metrics,
		errBackoff: eb,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	if d.cpu < 0 {
		d.cpu = -1
	}

	d.breakerTimeout = 250 * time.Millisecond
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: fmt.Sprintf("progress-driver-%s", name),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 8
		},
		Timeout: d.breakerTimeout,
	})

	return d
}

// Start launches the driver's polling goroutine.
func (d *Driver) Start() {
	d.wg.Add(1)
	go d.run()
	go func() {
		d.wg.Wait()
		close(d.stoppedCh)
	}()
}

// Stop signals the driver to exit and waits for it, up to the configured
// timeout. Idempotent.
func (d *Driver) Stop(timeout time.Duration) {
	select {
	case <-d.stopCh:
		// already stopping/stopped
	default:
		close(d.stopCh)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-d.stoppedCh:
		logger.Debug("progress driver stopped", "device", d.name)
	case <-time.After(timeout):
		logger.Warn("progress driver stop timed out", "device", d.name)
	}
}

func (d *Driver) run() {
	defer d.wg.Done()
	defer close(d.out)

	if d.cpu >= 0 {
		if err := pinCurrentThread(d.cpu); err != nil {
			logger.Warn("progress driver failed to pin CPU", "device", d.name, "cpu", d.cpu, "error", err)
		}
	}

	batch := make([]completion.WorkCompletion, d.batchSize)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.flushPending()
		d.pollOnce(batch)
	}
}

// pollOnce executes one drain attempt through the circuit breaker and acts
// on the result. Broken out from run for testability.
func (d *Driver) pollOnce(batch []completion.WorkCompletion) {
	result, err := d.breaker.Execute(func() (interface{}, error) {
		n, code := completion.DrainSuccess(d.provider, d.cq, batch)
		switch code {
		case status.Success, status.Again, status.QueueOverrun:
			return drainResult{n: n, code: code}, nil
		default:
			return nil, code
		}
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			if d.metrics != nil {
				d.metrics.BreakerOpen()
			}
			time.Sleep(d.breakerTimeout / 4)
			return
		}
		// Any other error is a genuine CQ-read failure (not transient-empty,
		// not a blocked-on-error-entry condition): back off with jitter
		// before retrying (spec.md §4.6's "other error" path).
		if d.metrics != nil {
			d.metrics.Backoff("other")
		}
		time.Sleep(d.errBackoff.NextBackOff())
		return
	}

	d.errBackoff.Reset()
	res := result.(drainResult)

	switch res.code {
	case status.Success:
		if d.metrics != nil {
			d.metrics.PollBatch(res.n)
		}
		for i := 0; i < res.n; i++ {
			d.deliver(batch[i])
		}

	case status.Again:
		if d.metrics != nil {
			d.metrics.PollEmpty()
		}
		sleepJitter(10*time.Microsecond, 100*time.Microsecond)

	case status.QueueOverrun:
		wc, code := completion.DrainError(d.provider, d.cq)
		if code == status.Success {
			d.deliver(wc)
		}
	}
}

// deliver hands a translated completion off to the consumer. If the
// consumer isn't ready, the completion is stashed in the single pending
// slot and retried at the top of the next loop iteration (spec.md §4.6's
// off-driver-thread delivery). If the slot is already occupied, which
// happens when one batch yields several completions for a consumer that is
// not ready, deliver blocks until the consumer takes the stashed one.
func (d *Driver) deliver(wc completion.WorkCompletion) {
	if d.pending != nil {
		// The slot still holds an earlier completion of this batch.
		// Overwriting would drop a completion, so wait for room instead.
		d.out <- *d.pending
		d.pending = nil
	}
	select {
	case d.out <- wc:
	default:
		cp := wc
		d.pending = &cp
	}
}

// flushPending retries delivering a previously stashed completion. Blocks
// briefly if the consumer is still not ready, bounded by a short timer so
// the driver can still observe a Stop request.
func (d *Driver) flushPending() {
	if d.pending == nil {
		return
	}
	select {
	case d.out <- *d.pending:
		d.pending = nil
	case <-time.After(time.Millisecond):
	case <-d.stopCh:
	}
}

// sleepJitter sleeps for a random duration in [min, max).
func sleepJitter(min, max time.Duration) {
	if max <= min {
		time.Sleep(min)
		return
	}
	span := max - min
	time.Sleep(min + time.Duration(rand.Int63n(int64(span))))
}
