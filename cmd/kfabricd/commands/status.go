package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusPidFile string
	statusAddr    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the kfabricd daemon.

Checks the PID file and, if the control plane is enabled, its /health
endpoint.

Examples:
  # Check status (uses default settings)
  kfabricd status

  # Check status against a custom control-plane address
  kfabricd status --addr localhost:9090`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/kfabric/kfabricd.pid)")
	statusCmd.Flags().StringVar(&statusAddr, "addr", "localhost:8080", "Control plane address to query for health")
}

type daemonStatus struct {
	running bool
	pid     int
	healthy bool
	message string
}

func runStatus(cmd *cobra.Command, args []string) error {
	st := daemonStatus{message: "daemon is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					st.running = true
					st.pid = pid
				}
			}
		}
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", statusAddr))
	if err == nil {
		defer func() { _ = resp.Body.Close() }()
		var body struct {
			Status string `json:"status"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			st.running = true
			st.healthy = body.Status == "ok"
		}
	}

	if st.running {
		if st.healthy {
			st.message = "daemon is running and healthy"
		} else {
			st.message = "daemon is running (control plane not reachable or disabled)"
		}
	}

	printStatus(st)
	return nil
}

func printStatus(st daemonStatus) {
	fmt.Println()
	fmt.Println("kfabricd status")
	fmt.Println("===============")
	fmt.Println()

	if st.running {
		if st.healthy {
			fmt.Printf("  Status:  \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:  \033[33m● Running (unhealthy)\033[0m\n")
		}
		if st.pid != 0 {
			fmt.Printf("  PID:     %d\n", st.pid)
		}
	} else {
		fmt.Printf("  Status:  \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", st.message)
	fmt.Println()
}
