package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type deviceView struct {
	Name         string `json:"name"`
	ProviderName string `json:"provider_name"`
	NodeName     string `json:"node_name"`
	QueueCount   int    `json:"queue_count"`
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List discovered devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		var views []deviceView
		if err := getJSON("/api/v1/devices", &views); err != nil {
			return err
		}

		rows := make([][]string, 0, len(views))
		for _, v := range views {
			rows = append(rows, []string{v.Name, v.ProviderName, v.NodeName, strconv.Itoa(v.QueueCount)})
		}
		if len(rows) == 0 {
			fmt.Println("no devices discovered")
			return nil
		}
		printTable(os.Stdout, []string{"Name", "Provider", "Node", "QPs"}, rows)
		return nil
	},
}
