package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/stretchr/testify/require"
)

func discoverDevices(t *testing.T, names ...string) []*device.Device {
	t.Helper()
	sim := fabricsim.New()
	for _, name := range names {
		sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: name})
	}
	devices, err := device.Discover(context.Background(), sim, device.DiscoverConfig{ProviderName: "cxi"})
	require.NoError(t, err)
	return devices
}

func TestRegisterDevice(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0")

	require.NoError(t, reg.RegisterDevice(devices[0]))
	require.Equal(t, 1, reg.CountDevices())

	require.Error(t, reg.RegisterDevice(devices[0]))
	require.Error(t, reg.RegisterDevice(nil))
}

func TestRegisterAll_StopsAtFirstCollision(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0", "dev1")

	require.NoError(t, reg.RegisterAll(devices))
	require.Equal(t, 2, reg.CountDevices())

	dup := discoverDevices(t, "dev1")
	err := reg.RegisterAll(dup)
	require.Error(t, err)
}

func TestGetDevice(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0")
	require.NoError(t, reg.RegisterDevice(devices[0]))

	got, err := reg.GetDevice("dev0")
	require.NoError(t, err)
	require.Same(t, devices[0], got)

	_, err = reg.GetDevice("nonexistent")
	require.Error(t, err)
}

func TestUnregisterDevice(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0")
	require.NoError(t, reg.RegisterDevice(devices[0]))

	require.NoError(t, reg.UnregisterDevice("dev0"))
	require.Equal(t, 0, reg.CountDevices())
	require.Error(t, reg.UnregisterDevice("dev0"))
}

func TestDevicesAndNames_SortedByName(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev2", "dev0", "dev1")
	require.NoError(t, reg.RegisterAll(devices))

	names := reg.DeviceNames()
	require.Equal(t, []string{"dev0", "dev1", "dev2"}, names)

	listed := reg.Devices()
	require.Len(t, listed, 3)
	require.Equal(t, "dev0", listed[0].Name)
	require.Equal(t, "dev1", listed[1].Name)
	require.Equal(t, "dev2", listed[2].Name)
}

func TestDeviceExists(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0")
	require.NoError(t, reg.RegisterDevice(devices[0]))

	require.True(t, reg.DeviceExists("dev0"))
	require.False(t, reg.DeviceExists("dev1"))
}

func TestCloseAll(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0", "dev1")
	require.NoError(t, reg.RegisterAll(devices))

	require.NoError(t, reg.CloseAll())
	require.Equal(t, 0, reg.CountDevices())
}

func TestConcurrentReads(t *testing.T) {
	reg := NewRegistry()
	devices := discoverDevices(t, "dev0")
	require.NoError(t, reg.RegisterDevice(devices[0]))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.GetDevice("dev0")
			_ = reg.Devices()
			_ = reg.CountDevices()
		}()
	}
	wg.Wait()
}
