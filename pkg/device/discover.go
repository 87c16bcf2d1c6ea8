package device

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/mr"
)

// DiscoverConfig bounds and tunes discovery.
type DiscoverConfig struct {
	ProviderName string
	Hints        fabric.CapabilityHint
	EndpointType fabric.EndpointType

	// Concurrency bounds how many fabric/domain opens run at once. Zero
	// selects 4.
	Concurrency int

	// MRCacheCapacity is the per-device MR cache size; 0 means unlimited.
	MRCacheCapacity int
	// MaxSGE is the per-device scatter-gather ceiling; 0 selects
	// mr.DefaultMaxSGE.
	MaxSGE int

	KeyMetrics   keymap.Metrics
	CacheMetrics mr.CacheMetrics
}

// Discover enumerates every fabric instance the provider reports for
// ProviderName and opens a Device for each one, skipping (and logging) any
// entry whose fabric or domain fails to open rather than aborting the
// whole discovery pass (spec.md §4.6, §7: "never abort discovery over one
// bad device").
//
// Grounded on the teacher's concurrent-with-bounded-fan-out pattern; unlike
// the teacher's sequential directory walks, discovery here opens multiple
// independent fabric instances, so golang.org/x/sync/errgroup's bounded
// SetLimit is used to cap concurrent opens instead of an unbounded
// goroutine-per-device fan-out.
func Discover(ctx context.Context, provider fabric.Provider, cfg DiscoverConfig) ([]*Device, error) {
	infos, err := provider.GetInfo(ctx, cfg.ProviderName, cfg.Hints, cfg.EndpointType)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	devices := make([]*Device, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			fh, err := provider.OpenFabric(info)
			if err != nil {
				logger.Warn("skipping device: fabric open failed", "node", info.NodeName, "error", err)
				return nil
			}
			dh, err := provider.OpenDomain(fh, info)
			if err != nil {
				logger.Warn("skipping device: domain open failed", "node", info.NodeName, "error", err)
				_ = provider.Close(fh)
				return nil
			}

			devices[i] = newDevice(info.NodeName, provider, info, fh, dh, cfg.KeyMetrics, cfg.CacheMetrics, cfg.MRCacheCapacity, cfg.MaxSGE)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Device, 0, len(devices))
	for _, d := range devices {
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}
