// Package fabric defines the consumed fabric interface (spec.md §6.1):
// the opaque provider contract the core translates against. The provider
// itself (the kfabric/CXI library) is out of scope for this repository —
// only the Go-shaped interface it must satisfy lives here, plus an
// in-memory test double under fabricsim.
package fabric

import "context"

// CapabilityHint enumerates the capability bits requested at discovery.
type CapabilityHint int

const (
	// CapMsg requests unreliable/reliable message send/recv support.
	CapMsg CapabilityHint = 1 << iota
	// CapRMA requests RDMA read/write support.
	CapRMA
	// CapTagged requests tagged message support.
	CapTagged
)

// EndpointType mirrors the fabric endpoint types relevant to this shim.
type EndpointType int

const (
	// EndpointReliableDatagram is the only endpoint type the core uses
	// (spec.md §4.6: "endpoint type reliable-datagram").
	EndpointReliableDatagram EndpointType = iota
)

// Info describes one provider-discovered fabric instance, returned by
// GetInfo. It is opaque to the core beyond the fields it reads.
type Info struct {
	// ProviderName identifies the fabric provider ("cxi").
	ProviderName string
	// NodeName is a human-readable identifier for the discovered instance.
	NodeName string
	// DefaultVNI is the provider's ambient default VNI, if any (spec.md §4.8
	// priority 2). HasDefaultVNI reports whether one was supplied; zero is a
	// valid VNI.
	DefaultVNI    uint16
	HasDefaultVNI bool
	// DefaultServiceID / DefaultTrafficClass are the provider's ambient
	// defaults for the remaining authentication-key fields (spec.md §3's
	// "16-bit service identifier, 8-bit traffic class"), consulted under
	// the same priority-2 fallback as DefaultVNI (spec.md §4.8).
	DefaultServiceID       uint16
	HasDefaultServiceID    bool
	DefaultTrafficClass    uint8
	HasDefaultTrafficClass bool
	// SendQueueDepth / RecvQueueDepth are provider-advertised defaults used
	// when the init attributes do not override them.
	SendQueueDepth int
	RecvQueueDepth int
}

// FabricHandle is an opaque fabric-library handle.
type FabricHandle interface{ fabricHandle() }

// DomainHandle is an opaque domain handle, shared by every PD/CQ/QP/MR on
// a device.
type DomainHandle interface{ domainHandle() }

// EndpointHandle is an opaque fabric endpoint (QP analogue).
type EndpointHandle interface{ endpointHandle() }

// CQHandleNative is an opaque native completion-queue handle.
type CQHandleNative interface{ cqHandle() }

// AVHandle is an opaque address-vector handle.
type AVHandle interface{ avHandle() }

// MRHandleNative is an opaque native memory-region handle.
type MRHandleNative interface{ mrHandle() }

// FabricAddress is an opaque resolved peer address, returned by AVInsert.
type FabricAddress uint64

// CQAttr configures OpenCQ.
type CQAttr struct {
	Capacity int
	// Format selects the native completion entry shape. The core always
	// requests the richest (context+data) format so the completion
	// translator has access to byte length and opcode flags.
	Format CQFormat
}

// CQFormat enumerates native completion-entry layouts.
type CQFormat int

const (
	// CQFormatContext carries only the opaque per-operation context.
	CQFormatContext CQFormat = iota
	// CQFormatData additionally carries byte length and opcode flags.
	CQFormatData
)

// BindDirection selects which queue direction an EPBind call attaches.
type BindDirection int

const (
	BindTransmit BindDirection = iota
	BindReceive
)

// AccessFlag mirrors verbs-style MR access flags.
type AccessFlag int

const (
	AccessLocalWrite AccessFlag = 1 << iota
	AccessRemoteWrite
	AccessRemoteRead
)

// MRRegFlag modifies MRReg behavior.
type MRRegFlag int

const (
	// MRRegFastReg requests a fast-registration (empty, zero-length) MR
	// that is later populated via MapSG-equivalent provider calls.
	MRRegFastReg MRRegFlag = 1 << iota
)

// CompletionEntry is the native completion shape read by CQRead.
type CompletionEntry struct {
	Context   uint64
	Length    uint64
	OpFlags   OpFlag
	ImmData   uint32
	HasImm    bool
}

// OpFlag mirrors the native completion opcode flag bits (spec.md §4.4).
type OpFlag int

const (
	OpFlagSend OpFlag = 1 << iota
	OpFlagRecv
	OpFlagRead
	OpFlagWrite
)

// CQErrEntry is the native error-completion shape read by CQReadErr.
type CQErrEntry struct {
	Context   uint64
	NativeErr int
	ProvErr   int32
}

// SGE is one (address, length, descriptor) tuple of a vectored operation.
type SGE struct {
	Addr   uint64
	Length uint64
	Desc   MRHandleNative
}

// Provider is the Go-shaped consumed fabric interface (spec.md §6.1). Every
// method corresponds 1:1 to a provider primitive the core relies on.
// Implementations must be safe for concurrent use by multiple goroutines,
// since operations on independent QPs/CQs/devices proceed concurrently
// (spec.md §5).
type Provider interface {
	// GetInfo requests provider info for a named provider with the given
	// capability hints and endpoint type.
	GetInfo(ctx context.Context, providerName string, hints CapabilityHint, ep EndpointType) ([]*Info, error)

	OpenFabric(info *Info) (FabricHandle, error)
	OpenDomain(fh FabricHandle, info *Info) (DomainHandle, error)
	OpenEndpoint(dh DomainHandle, info *Info) (EndpointHandle, error)
	OpenCQ(dh DomainHandle, attr CQAttr) (CQHandleNative, error)
	OpenAV(dh DomainHandle, capacity int) (AVHandle, error)
	AVInsert(av AVHandle, addr []byte) (FabricAddress, error)
	EPBind(ep EndpointHandle, object any, dir BindDirection) error
	Enable(ep EndpointHandle) error

	// MRReg registers a memory region. requestedKey, when non-zero, asks
	// the provider to use that exact native key (used by the all-memory
	// DMA MR and fast-registration paths, which equate local/remote keys
	// per spec.md §4.3).
	MRReg(dh DomainHandle, buf uintptr, length uint64, access AccessFlag, requestedKey uint64, flags MRRegFlag) (MRHandleNative, uint64, error)
	// MapSG populates a fast-registration MR from a scatter-gather list.
	// Returns the number of segments actually mapped. If the provider
	// cannot map more than one segment, it maps the first and returns 1.
	MapSG(mr MRHandleNative, sg []SGE, offset uint64, pageSize uint64) (int, error)
	MRDesc(mr MRHandleNative) (any, error)
	MRKey(mr MRHandleNative) (uint64, error)
	Close(h any) error

	Send(ep EndpointHandle, buf []byte, desc any, context uint64) error
	SendV(ep EndpointHandle, sg []SGE, context uint64) error
	Recv(ep EndpointHandle, buf []byte, desc any, context uint64) error
	RecvV(ep EndpointHandle, sg []SGE, context uint64) error
	Read(ep EndpointHandle, buf []byte, desc any, remoteAddr uint64, remoteKey uint64, context uint64) error
	ReadV(ep EndpointHandle, sg []SGE, remoteAddr uint64, remoteKey uint64, context uint64) error
	Write(ep EndpointHandle, buf []byte, desc any, remoteAddr uint64, remoteKey uint64, context uint64) error
	WriteV(ep EndpointHandle, sg []SGE, remoteAddr uint64, remoteKey uint64, context uint64) error

	// CQRead drains up to len(out) completions. Returns the number read,
	// or a native error code (status.NativeEAGAIN when empty).
	CQRead(cq CQHandleNative, out []CompletionEntry) (int, int)
	// CQReadErr reads exactly one error completion.
	CQReadErr(cq CQHandleNative, flags int) (CQErrEntry, error)
}
