// Package mountopt parses the NFS/RDMA mount option string for the out-of-
// band VNI a queue pair should request at INIT time (spec.md §4.8).
package mountopt

import (
	"strconv"
	"strings"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// ParseVNI scans a comma-separated key=value mount option string for a
// "vni=N" entry and returns its value. Returns status.InvalidArgument if
// opts is empty, if no vni key is present, or if a vni key is present but
// malformed or out of the 16-bit VNI range (spec.md §8: "parse_vni on "",
// NULL, and "foo=bar" returns invalid-argument").
func ParseVNI(opts string) (uint16, status.Code) {
	if opts == "" {
		return 0, status.InvalidArgument
	}

	found := false
	var value uint16

	for _, pair := range strings.Split(opts, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key != "vni" {
			continue
		}

		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n > 0xFFFF {
			return 0, status.InvalidArgument
		}
		value = uint16(n)
		found = true
	}

	if !found {
		return 0, status.InvalidArgument
	}
	return value, status.Success
}
