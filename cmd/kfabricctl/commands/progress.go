package commands

import (
	"os"

	"github.com/spf13/cobra"
)

type progressView struct {
	PollInterval string `json:"poll_interval"`
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the progress engine's configured poll interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		var v progressView
		if err := getJSON("/api/v1/progress", &v); err != nil {
			return err
		}
		printTable(os.Stdout, []string{"Poll Interval"}, [][]string{{v.PollInterval}})
		return nil
	},
}
