package status

import "golang.org/x/sys/unix"

// Provider-specific taxonomy codes used by FromNative that have no direct
// errno counterpart (spec.md §4.1: "provider-only codes").
const (
	nativeTruncation   = -1001
	nativeQueueOverrun = -1002
)

// FromNative maps a native fabric return code to a taxonomy Code.
//
// Fabric providers return 0 on success and a negative errno-shaped value on
// failure (the libfabric convention kfabric inherits), plus a small set of
// provider-only negative sentinels for truncation and queue overrun that
// have no POSIX errno equivalent. Any value with no explicit case maps to
// Other.
func FromNative(native int) Code {
	switch native {
	case 0:
		return Success
	case nativeTruncation:
		return Truncation
	case nativeQueueOverrun:
		return QueueOverrun
	case -int(unix.EAGAIN):
		return Again
	case -int(unix.EACCES), -int(unix.EPERM):
		return Permission
	case -int(unix.ECANCELED):
		return Canceled
	case -int(unix.EINVAL):
		return InvalidArgument
	case -int(unix.ENOMEM):
		return OutOfMemory
	case -int(unix.ENODATA):
		return NoData
	case -int(unix.EMSGSIZE):
		return MessageTooLong
	case -int(unix.EOPNOTSUPP):
		return Unsupported
	case -int(unix.ENOENT):
		return NoEntry
	case -int(unix.EBUSY):
		return Busy
	case -int(unix.ENETDOWN):
		return NetworkDown
	case -int(unix.ENETUNREACH):
		return NetworkUnreachable
	case -int(unix.ECONNREFUSED):
		return Refused
	case -int(unix.ECONNRESET):
		return Reset
	case -int(unix.ETIMEDOUT):
		return Timeout
	case -int(unix.ENOTCONN):
		return NotConnected
	default:
		return Other
	}
}

// NativeTruncation is the provider sentinel value that FromNative maps to
// Truncation. Exposed so fabricsim and other test doubles can synthesize
// truncation errors without reaching into taxonomy internals.
const NativeTruncation = nativeTruncation

// NativeQueueOverrun is the provider sentinel value that FromNative maps to
// QueueOverrun.
const NativeQueueOverrun = nativeQueueOverrun

// NativeEAGAIN is the native return code for a transient "try again"
// condition, as returned by cq_read when no completions are pending.
var NativeEAGAIN = -int(unix.EAGAIN)

// NativeEAccess returns the native return code for a permission failure,
// for use by tests and fabricsim.
func NativeEAccess() int { return -int(unix.EACCES) }

// NativeECanceled returns the native return code for a canceled operation.
func NativeECanceled() int { return -int(unix.ECANCELED) }

// NativeCoder is implemented by provider errors that carry a raw native
// return code, letting callers recover the taxonomy Code without a
// provider-specific type switch.
type NativeCoder interface {
	Native() int
}

// FromError translates an error returned by a fabric.Provider call into a
// taxonomy Code. A nil error maps to Success; an error implementing
// NativeCoder is translated via FromNative; anything else maps to Other.
func FromError(err error) Code {
	if err == nil {
		return Success
	}
	if nc, ok := err.(NativeCoder); ok {
		return FromNative(nc.Native())
	}
	return Other
}
