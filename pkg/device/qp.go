package device

import (
	"sync"
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/auth"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// State is a queue-pair state, following the verbs RESET/INIT/RTR/RTS/ERR
// state machine (spec.md §4.6). kfabric has no connection handshake to
// exchange: AV insertion plus endpoint enable stands in for "connecting".
type State int

const (
	StateReset State = iota
	StateInit
	StateRTR
	StateRTS
	StateErr
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "RESET"
	case StateInit:
		return "INIT"
	case StateRTR:
		return "RTR"
	case StateRTS:
		return "RTS"
	case StateErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// QP is a queue pair: a synthetic 32-bit handle onto a native fabric
// endpoint, its bound send/recv CQs, and its resolved VNI.
type QP struct {
	device *Device
	pd     *PD
	id     uint32
	native fabric.EndpointHandle
	sendCQ *CQ
	recvCQ *CQ

	av fabric.AVHandle

	mu           sync.Mutex
	state        State
	vni          uint16
	hasVNI       bool
	serviceID    uint16
	trafficClass uint8

	// SendMu and RecvMu serialize post_send and post_recv independently
	// (spec.md §5: "they may be held concurrently with each other but must
	// not be nested in a single caller"). The operation translator locks
	// these directly; they are exported so pkg/verbs need not live inside
	// this package to walk a work-request chain under the right lock.
	SendMu sync.Mutex
	RecvMu sync.Mutex

	invalidateWarned atomic.Bool
}

// ID returns the QP's synthetic handle.
func (qp *QP) ID() uint32 { return qp.id }

// State returns the QP's current state.
func (qp *QP) State() State {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.state
}

// VNI returns the QP's resolved VNI, if any. Only meaningful once the QP
// has left RESET.
func (qp *QP) VNI() (uint16, bool) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.vni, qp.hasVNI
}

// ServiceID and TrafficClass return the remaining fields of the QP's
// resolved authentication key (spec.md §3). Only meaningful once the QP
// has left RESET.
func (qp *QP) ServiceID() uint16 {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.serviceID
}

func (qp *QP) TrafficClass() uint8 {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.trafficClass
}

// Native exposes the underlying fabric endpoint, e.g. for the operation
// translator's post_send/post_recv calls.
func (qp *QP) Native() fabric.EndpointHandle { return qp.native }

// SendCQ returns the QP's bound send completion queue.
func (qp *QP) SendCQ() *CQ { return qp.sendCQ }

// RecvCQ returns the QP's bound receive completion queue.
func (qp *QP) RecvCQ() *CQ { return qp.recvCQ }

// Device returns the owning device, e.g. so the operation translator can
// resolve a work request's local key against the device's MR table.
func (qp *QP) Device() *Device { return qp.device }

// WarnInvalidateOnce reports whether this is the first time
// SEND-WITH-INVALIDATE has degraded to a plain SEND on this QP (spec.md §9:
// "deserves a runtime warning the first time it is exercised per QP").
// Subsequent calls return false.
func (qp *QP) WarnInvalidateOnce() bool {
	return qp.invalidateWarned.CompareAndSwap(false, true)
}

// CreateQP allocates a reliable-datagram endpoint bound to pd, starting in
// RESET. sendCQ and recvCQ must already exist on the same device.
func (d *Device) CreateQP(pd *PD, sendCQ, recvCQ *CQ) (*QP, status.Code) {
	native, err := d.provider.OpenEndpoint(d.domainHandle, d.Info)
	if err != nil {
		return nil, status.FromError(err)
	}

	av, err := d.provider.OpenAV(d.domainHandle, 1)
	if err != nil {
		_ = d.provider.Close(native)
		return nil, status.FromError(err)
	}

	pd.ref()
	qp := &QP{device: d, pd: pd, id: d.qpIDSeq.Add(1), native: native, sendCQ: sendCQ, recvCQ: recvCQ, av: av, state: StateReset}

	d.mu.Lock()
	d.qps[qp.id] = qp
	d.mu.Unlock()
	return qp, status.Success
}

// ModifyToInit resolves and records the QP's authentication key (VNI,
// service identifier, traffic class) and advances RESET->INIT. requested is
// the QP's out-of-band configuration, if any (e.g. a parsed mount option);
// ambient is the provider's advertised defaults (spec.md §4.8).
func (qp *QP) ModifyToInit(requested, ambient auth.Candidate) status.Code {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.state != StateReset {
		return status.InvalidArgument
	}

	resolved, code := auth.ResolveVNI(requested, ambient)
	if code != status.Success {
		return code
	}

	qp.vni, qp.hasVNI = resolved.VNI, resolved.Has
	qp.serviceID, qp.trafficClass = resolved.ServiceID, resolved.TrafficClass
	qp.state = StateInit
	return status.Success
}

// ModifyToRTR inserts peerAddr into the QP's address vector, binds the
// address vector and send CQ to the endpoint for transmit and the receive
// CQ for receive, advancing INIT->RTR.
func (qp *QP) ModifyToRTR(peerAddr []byte) status.Code {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.state != StateInit {
		return status.InvalidArgument
	}

	if _, err := qp.device.provider.AVInsert(qp.av, peerAddr); err != nil {
		return status.FromError(err)
	}
	if err := qp.device.provider.EPBind(qp.native, qp.av, fabric.BindTransmit); err != nil {
		return status.FromError(err)
	}
	if err := qp.device.provider.EPBind(qp.native, qp.sendCQ.native, fabric.BindTransmit); err != nil {
		return status.FromError(err)
	}
	if err := qp.device.provider.EPBind(qp.native, qp.recvCQ.native, fabric.BindReceive); err != nil {
		return status.FromError(err)
	}

	qp.state = StateRTR
	return status.Success
}

// ModifyToRTS enables the endpoint, advancing RTR->RTS. This is the last
// step of kfabric's connectionless "connection establishment": after this
// call the QP can post sends, receives, and RDMA operations.
func (qp *QP) ModifyToRTS() status.Code {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.state != StateRTR {
		return status.InvalidArgument
	}
	if err := qp.device.provider.Enable(qp.native); err != nil {
		return status.FromError(err)
	}
	qp.state = StateRTS
	return status.Success
}

// ModifyToErr forces the QP into the terminal ERR state from any state.
// Operations already posted are expected to complete with a flush-error
// work completion (spec.md §4.1).
func (qp *QP) ModifyToErr() {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	qp.state = StateErr
}

// DestroyQP closes a QP's endpoint and address vector and releases its PD
// reference.
func (d *Device) DestroyQP(qp *QP) status.Code {
	d.mu.Lock()
	if _, ok := d.qps[qp.id]; !ok {
		d.mu.Unlock()
		return status.NoEntry
	}
	delete(d.qps, qp.id)
	d.mu.Unlock()

	qp.pd.unref()
	_ = d.provider.Close(qp.av)
	if err := d.provider.Close(qp.native); err != nil {
		return status.FromError(err)
	}
	return status.Success
}
