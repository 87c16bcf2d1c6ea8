// Package auth implements authentication-key resolution (spec.md §4.8): the
// two-step priority order used to settle a queue pair's VNI, service
// identifier, and traffic class during its RESET->INIT transition.
package auth

import "github.com/hpc-fabrics/kfabric-verbs/pkg/status"

// Candidate is one source of authentication-key values considered during
// resolution — either the QP's own out-of-band request or the provider's
// ambient defaults (spec.md §3's authentication-key entity: "16-bit VNI,
// 16-bit service identifier, 8-bit traffic class"). A false Has* field
// means that field was not supplied by this source.
type Candidate struct {
	VNI    uint16
	HasVNI bool

	ServiceID    uint16
	HasServiceID bool

	TrafficClass    uint8
	HasTrafficClass bool
}

// Resolved is the outcome of authentication-key resolution.
type Resolved struct {
	VNI uint16
	Has bool

	ServiceID    uint16
	TrafficClass uint8
}

// ResolveVNI picks the authentication key a queue pair should use, field by
// field, in priority order:
//  1. the QP's own out-of-band value, if the caller supplied one at creation
//     (e.g. via a parsed mount option);
//  2. the provider's ambient default, advertised in fabric.Info.
//
// VNI is load-bearing: if neither source supplies it, resolution fails with
// status.Permission and the QP must remain in RESET (spec.md §4.8).
// ServiceID and TrafficClass have no such requirement; an unsupplied field
// resolves to its zero value.
func ResolveVNI(requested, ambient Candidate) (Resolved, status.Code) {
	var resolved Resolved
	switch {
	case requested.HasVNI:
		resolved.VNI, resolved.Has = requested.VNI, true
	case ambient.HasVNI:
		resolved.VNI, resolved.Has = ambient.VNI, true
	default:
		return Resolved{}, status.Permission
	}

	if requested.HasServiceID {
		resolved.ServiceID = requested.ServiceID
	} else if ambient.HasServiceID {
		resolved.ServiceID = ambient.ServiceID
	}

	if requested.HasTrafficClass {
		resolved.TrafficClass = requested.TrafficClass
	} else if ambient.HasTrafficClass {
		resolved.TrafficClass = ambient.TrafficClass
	}

	return resolved, status.Success
}
