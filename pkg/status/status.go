// Package status implements the fabric error taxonomy and its mapping to
// verbs-style work-completion status codes.
//
// This is a leaf package with no internal dependencies, designed to be
// imported by every other component without causing import cycles.
package status

import "fmt"

// Code is a fabric error taxonomy code. Values are offset by codeBase so
// they are never mistaken for a raw OS errno.
type Code int

// codeBase keeps the taxonomy disjoint from standard errno values.
const codeBase = 256

const (
	// Success indicates no error.
	Success Code = 0

	// Again indicates a transient condition; the caller should retry.
	Again Code = codeBase + iota
	// Permission indicates the operation was denied (EACCES/EPERM).
	Permission
	// Canceled indicates the operation was canceled (e.g. QP flushed).
	Canceled
	// InvalidArgument indicates a malformed request.
	InvalidArgument
	// OutOfMemory indicates a resource allocation failure.
	OutOfMemory
	// NoData indicates no data was available (non-error empty read).
	NoData
	// MessageTooLong indicates a message exceeded a size limit.
	MessageTooLong
	// Unsupported indicates the requested operation is not implemented.
	Unsupported
	// NoEntry indicates a lookup found nothing.
	NoEntry
	// Busy indicates a resource is still referenced and cannot be freed.
	Busy
	// NetworkDown indicates the local network interface is down.
	NetworkDown
	// NetworkUnreachable indicates the destination network is unreachable.
	NetworkUnreachable
	// Refused indicates the remote end refused the operation.
	Refused
	// Reset indicates the connection (address vector binding) was reset.
	Reset
	// Timeout indicates the operation did not complete in time.
	Timeout
	// NotConnected indicates the endpoint has no established peer.
	NotConnected

	// Truncation is a provider-only code: a completion was larger than the
	// posted buffer.
	Truncation
	// QueueOverrun is a provider-only code: a completion queue overflowed.
	QueueOverrun
	// Other is a provider-only catch-all for codes with no taxonomy entry.
	Other
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case Again:
		return "Again"
	case Permission:
		return "Permission"
	case Canceled:
		return "Canceled"
	case InvalidArgument:
		return "InvalidArgument"
	case OutOfMemory:
		return "OutOfMemory"
	case NoData:
		return "NoData"
	case MessageTooLong:
		return "MessageTooLong"
	case Unsupported:
		return "Unsupported"
	case NoEntry:
		return "NoEntry"
	case Busy:
		return "Busy"
	case NetworkDown:
		return "NetworkDown"
	case NetworkUnreachable:
		return "NetworkUnreachable"
	case Refused:
		return "Refused"
	case Reset:
		return "Reset"
	case Timeout:
		return "Timeout"
	case NotConnected:
		return "NotConnected"
	case Truncation:
		return "Truncation"
	case QueueOverrun:
		return "QueueOverrun"
	case Other:
		return "Other"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error makes Code satisfy the error interface so it can be returned
// directly from functions that otherwise use (value, error) signatures.
func (c Code) Error() string {
	return c.String()
}

// IsTransient reports whether c represents a condition the caller should
// retry rather than treat as a hard failure.
func (c Code) IsTransient() bool {
	return c == Again
}

// WCStatus is a verbs-style work-completion status.
type WCStatus int

const (
	// WCSuccess indicates the work request completed successfully.
	WCSuccess WCStatus = iota
	// WCLocalLengthError indicates a local buffer was too short (truncation).
	WCLocalLengthError
	// WCLocalProtectionError indicates a local access-permission violation.
	WCLocalProtectionError
	// WCFlushError indicates the work request was flushed (QP in error/canceled).
	WCFlushError
	// WCGeneralError is the catch-all for anything not specifically mapped.
	WCGeneralError
)

// String returns a human-readable name for the work-completion status.
func (s WCStatus) String() string {
	switch s {
	case WCSuccess:
		return "Success"
	case WCLocalLengthError:
		return "LocalLengthError"
	case WCLocalProtectionError:
		return "LocalProtectionError"
	case WCFlushError:
		return "FlushError"
	case WCGeneralError:
		return "GeneralError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ToWorkCompletion maps a fabric error taxonomy code to a verbs-style
// work-completion status. The mapping is total and fixed: any addition to
// it is part of the public contract (spec.md §4.1).
func ToWorkCompletion(c Code) WCStatus {
	switch c {
	case Success:
		return WCSuccess
	case Truncation:
		return WCLocalLengthError
	case Permission:
		return WCLocalProtectionError
	case Canceled:
		return WCFlushError
	default:
		return WCGeneralError
	}
}
