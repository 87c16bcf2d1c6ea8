package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type qpView struct {
	ID     uint32 `json:"id"`
	State  string `json:"state"`
	VNI    uint16 `json:"vni,omitempty"`
	HasVNI bool   `json:"has_vni"`
}

var qpsCmd = &cobra.Command{
	Use:   "qps <device>",
	Short: "List a device's queue pairs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var views []qpView
		if err := getJSON(fmt.Sprintf("/api/v1/devices/%s/qps", args[0]), &views); err != nil {
			return err
		}

		rows := make([][]string, 0, len(views))
		for _, v := range views {
			vni := "-"
			if v.HasVNI {
				vni = strconv.Itoa(int(v.VNI))
			}
			rows = append(rows, []string{strconv.FormatUint(uint64(v.ID), 10), v.State, vni})
		}
		if len(rows) == 0 {
			fmt.Printf("no queue pairs on device %q\n", args[0])
			return nil
		}
		printTable(os.Stdout, []string{"ID", "State", "VNI"}, rows)
		return nil
	},
}
