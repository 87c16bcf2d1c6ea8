package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type mrCacheView struct {
	Device        string `json:"device"`
	CachedRegions int    `json:"cached_regions"`
}

var mrcacheCmd = &cobra.Command{
	Use:   "mrcache <device>",
	Short: "Show a device's memory-registration cache occupancy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var v mrCacheView
		if err := getJSON(fmt.Sprintf("/api/v1/devices/%s/mrcache", args[0]), &v); err != nil {
			return err
		}
		printTable(os.Stdout, []string{"Device", "Cached Regions"}, [][]string{
			{v.Device, fmt.Sprintf("%d", v.CachedRegions)},
		})
		return nil
	},
}
