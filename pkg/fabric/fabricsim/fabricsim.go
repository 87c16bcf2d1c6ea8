// Package fabricsim is an in-memory fabric.Provider used by every other
// package's tests. It is not a CXI driver: it is a same-process loopback
// that lets the translator/cache/progress logic be exercised without
// hardware, the same way the teacher corpus tests its protocol layers
// against in-memory store fakes rather than real S3/Postgres.
package fabricsim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

type fabricHandle struct{ id uint64 }

func (*fabricHandle) fabricHandle() {}

type domainHandle struct{ id uint64 }

func (*domainHandle) domainHandle() {}

type endpointHandle struct {
	id      uint64
	enabled bool
	av      *avHandle
}

func (*endpointHandle) endpointHandle() {}

type cqHandle struct {
	id      uint64
	mu      sync.Mutex
	entries []fabric.CompletionEntry
	errs    []fabric.CQErrEntry
}

func (*cqHandle) cqHandle() {}

type avHandle struct {
	id        uint64
	mu        sync.Mutex
	addresses map[string]fabric.FabricAddress
	next      uint64
}

func (*avHandle) avHandle() {}

type mrHandle struct {
	id       uint64
	access   fabric.AccessFlag
	length   uint64
	key      uint64
	mapped   int
	fastReg  bool
}

func (*mrHandle) mrHandle() {}

// Provider is the in-memory fabric.Provider implementation.
type Provider struct {
	mu      sync.Mutex
	idSeq   atomic.Uint64
	infos   []*fabric.Info
	closed  map[uint64]bool
	mrKeys  atomic.Uint64

	// FailOpenFabric / FailOpenDomain let tests simulate discovery-time
	// resource exhaustion for specific node names (spec.md §4.6:
	// "Skip entries where fabric or domain opening fails").
	FailOpenFabric map[string]bool
	FailOpenDomain map[string]bool

	// DisableVectoredMapSG forces MapSG to only ever map the first segment,
	// simulating a provider without vectored registration support
	// (spec.md §4.3).
	DisableVectoredMapSG bool

	// RejectAllMemoryMR simulates a provider that refuses an all-memory
	// DMA MR spanning SIZE_MAX (spec.md §9).
	RejectAllMemoryMR bool
}

// New creates a Provider with no discoverable infos. Use AddInfo to seed
// discovery results.
func New() *Provider {
	return &Provider{
		closed:         make(map[uint64]bool),
		FailOpenFabric: make(map[string]bool),
		FailOpenDomain: make(map[string]bool),
	}
}

func (p *Provider) nextID() uint64 { return p.idSeq.Add(1) }

// AddInfo registers a discoverable Info entry, as if returned by the
// provider's getinfo call.
func (p *Provider) AddInfo(info *fabric.Info) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, info)
}

func (p *Provider) GetInfo(_ context.Context, providerName string, _ fabric.CapabilityHint, _ fabric.EndpointType) ([]*fabric.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*fabric.Info
	for _, i := range p.infos {
		if i.ProviderName == providerName {
			out = append(out, i)
		}
	}
	return out, nil
}

func (p *Provider) OpenFabric(info *fabric.Info) (fabric.FabricHandle, error) {
	if p.FailOpenFabric[info.NodeName] {
		return nil, fmt.Errorf("simulated fabric open failure for %s", info.NodeName)
	}
	return &fabricHandle{id: p.nextID()}, nil
}

func (p *Provider) OpenDomain(_ fabric.FabricHandle, info *fabric.Info) (fabric.DomainHandle, error) {
	if p.FailOpenDomain[info.NodeName] {
		return nil, fmt.Errorf("simulated domain open failure for %s", info.NodeName)
	}
	return &domainHandle{id: p.nextID()}, nil
}

func (p *Provider) OpenEndpoint(_ fabric.DomainHandle, _ *fabric.Info) (fabric.EndpointHandle, error) {
	return &endpointHandle{id: p.nextID()}, nil
}

func (p *Provider) OpenCQ(_ fabric.DomainHandle, _ fabric.CQAttr) (fabric.CQHandleNative, error) {
	return &cqHandle{id: p.nextID()}, nil
}

func (p *Provider) OpenAV(_ fabric.DomainHandle, _ int) (fabric.AVHandle, error) {
	return &avHandle{id: p.nextID(), addresses: make(map[string]fabric.FabricAddress)}, nil
}

func (p *Provider) AVInsert(av fabric.AVHandle, addr []byte) (fabric.FabricAddress, error) {
	a := av.(*avHandle)
	a.mu.Lock()
	defer a.mu.Unlock()
	key := string(addr)
	if existing, ok := a.addresses[key]; ok {
		return existing, nil
	}
	a.next++
	fa := fabric.FabricAddress(a.next)
	a.addresses[key] = fa
	return fa, nil
}

func (p *Provider) EPBind(ep fabric.EndpointHandle, object any, _ fabric.BindDirection) error {
	e := ep.(*endpointHandle)
	if av, ok := object.(fabric.AVHandle); ok {
		e.av = av.(*avHandle)
	}
	return nil
}

func (p *Provider) Enable(ep fabric.EndpointHandle) error {
	e := ep.(*endpointHandle)
	e.enabled = true
	return nil
}

func (p *Provider) MRReg(_ fabric.DomainHandle, _ uintptr, length uint64, access fabric.AccessFlag, requestedKey uint64, flags fabric.MRRegFlag) (fabric.MRHandleNative, uint64, error) {
	if p.RejectAllMemoryMR && length == ^uint64(0) {
		return nil, 0, fmt.Errorf("provider refuses all-memory DMA MR")
	}
	key := requestedKey
	if key == 0 {
		key = p.mrKeys.Add(1) + 0xF00000000
	}
	return &mrHandle{
		id:      p.nextID(),
		access:  access,
		length:  length,
		key:     key,
		fastReg: flags&fabric.MRRegFastReg != 0,
	}, key, nil
}

func (p *Provider) MapSG(mr fabric.MRHandleNative, sg []fabric.SGE, _ uint64, _ uint64) (int, error) {
	m := mr.(*mrHandle)
	if p.DisableVectoredMapSG && len(sg) > 1 {
		m.mapped = 1
		return 1, nil
	}
	m.mapped = len(sg)
	return len(sg), nil
}

func (p *Provider) MRDesc(mr fabric.MRHandleNative) (any, error) {
	return mr, nil
}

func (p *Provider) MRKey(mr fabric.MRHandleNative) (uint64, error) {
	return mr.(*mrHandle).key, nil
}

func (p *Provider) Close(h any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := h.(type) {
	case *fabricHandle:
		p.closed[v.id] = true
	case *domainHandle:
		p.closed[v.id] = true
	case *endpointHandle:
		p.closed[v.id] = true
	case *cqHandle:
		p.closed[v.id] = true
	case *avHandle:
		p.closed[v.id] = true
	case *mrHandle:
		p.closed[v.id] = true
	default:
		return fmt.Errorf("fabricsim: unknown handle type %T", h)
	}
	return nil
}

// PushTo enqueues a synthetic completion onto cq, for use by components
// that submit an operation and then want the progress engine / completion
// translator to observe it. Exported so pkg/verbs can complete operations
// inline, matching kfabric's connectionless, fire-and-complete model.
func (p *Provider) PushTo(cq fabric.CQHandleNative, entry fabric.CompletionEntry) {
	c := cq.(*cqHandle)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// PushErrTo enqueues a synthetic error completion onto cq.
func (p *Provider) PushErrTo(cq fabric.CQHandleNative, entry fabric.CQErrEntry) {
	c := cq.(*cqHandle)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, entry)
}

func (p *Provider) Send(ep fabric.EndpointHandle, buf []byte, _ any, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagSend, uint64(len(buf)), context)
}

func (p *Provider) SendV(ep fabric.EndpointHandle, sg []fabric.SGE, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagSend, sumSG(sg), context)
}

func (p *Provider) Recv(ep fabric.EndpointHandle, buf []byte, _ any, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagRecv, uint64(len(buf)), context)
}

func (p *Provider) RecvV(ep fabric.EndpointHandle, sg []fabric.SGE, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagRecv, sumSG(sg), context)
}

func (p *Provider) Read(ep fabric.EndpointHandle, buf []byte, _ any, _ uint64, _ uint64, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagRead, uint64(len(buf)), context)
}

func (p *Provider) ReadV(ep fabric.EndpointHandle, sg []fabric.SGE, _ uint64, _ uint64, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagRead, sumSG(sg), context)
}

func (p *Provider) Write(ep fabric.EndpointHandle, buf []byte, _ any, _ uint64, _ uint64, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagWrite, uint64(len(buf)), context)
}

func (p *Provider) WriteV(ep fabric.EndpointHandle, sg []fabric.SGE, _ uint64, _ uint64, context uint64) error {
	return p.simpleOp(ep, fabric.OpFlagWrite, sumSG(sg), context)
}

func (p *Provider) CQRead(cq fabric.CQHandleNative, out []fabric.CompletionEntry) (int, int) {
	c := cq.(*cqHandle)
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errs) > 0 {
		// A pending error completion blocks the bulk read, matching
		// providers where cq_read surfaces -FI_EAVAIL until cq_readerr
		// drains the error entry (spec.md §4.4 error path).
		return 0, status.NativeQueueOverrun
	}

	if len(c.entries) == 0 {
		return 0, status.NativeEAGAIN
	}

	n := copy(out, c.entries)
	c.entries = c.entries[n:]
	return n, 0
}

func (p *Provider) CQReadErr(cq fabric.CQHandleNative, _ int) (fabric.CQErrEntry, error) {
	c := cq.(*cqHandle)
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errs) == 0 {
		return fabric.CQErrEntry{}, fmt.Errorf("fabricsim: no error completion pending")
	}
	e := c.errs[0]
	c.errs = c.errs[1:]
	return e, nil
}

func sumSG(sg []fabric.SGE) uint64 {
	var n uint64
	for _, s := range sg {
		n += s.Length
	}
	return n
}

// OpResult lets tests force the next N submissions on an endpoint to fail
// with a given native error code (e.g. status.NativeEAGAIN for
// backpressure testing, spec.md §4.7).
type OpResult struct {
	NativeErr int
	Remaining int
}

var forcedResults = struct {
	mu sync.Mutex
	m  map[*endpointHandle]*OpResult
}{m: make(map[*endpointHandle]*OpResult)}

// ForceNextSubmitError arranges for the next n submissions on ep to return
// nativeErr instead of succeeding.
func ForceNextSubmitError(ep fabric.EndpointHandle, nativeErr int, n int) {
	forcedResults.mu.Lock()
	defer forcedResults.mu.Unlock()
	forcedResults.m[ep.(*endpointHandle)] = &OpResult{NativeErr: nativeErr, Remaining: n}
}

func (p *Provider) simpleOp(ep fabric.EndpointHandle, flag fabric.OpFlag, length uint64, context uint64) error {
	e := ep.(*endpointHandle)

	forcedResults.mu.Lock()
	if r, ok := forcedResults.m[e]; ok && r.Remaining > 0 {
		r.Remaining--
		if r.Remaining == 0 {
			delete(forcedResults.m, e)
		}
		forcedResults.mu.Unlock()
		if r.NativeErr != 0 {
			return statusError{native: r.NativeErr}
		}
	} else {
		forcedResults.mu.Unlock()
	}

	if !e.enabled {
		return statusError{native: status.NativeTruncation}
	}
	return nil
}

// statusError wraps a native error code so callers that need the raw value
// (the operation translator, which maps it via status.FromNative) can
// retrieve it with AsNative.
type statusError struct{ native int }

func (e statusError) Error() string { return fmt.Sprintf("fabricsim: native error %d", e.native) }

// Native implements status.NativeCoder so callers can translate a fabricsim
// error directly with status.FromError instead of reaching for AsNative.
func (e statusError) Native() int { return e.native }

// AsNative extracts the native error code from an error returned by a
// fabricsim submission call, or returns status.Other's sentinel value
// (-9999-shaped catch-all) if err does not originate here.
func AsNative(err error) int {
	if err == nil {
		return 0
	}
	var se statusError
	if e, ok := err.(statusError); ok {
		se = e
		return se.native
	}
	return -9999
}
