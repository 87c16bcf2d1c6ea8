package commands

import (
	"fmt"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample kfabricd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/kfabric/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  kfabricd init

  # Initialize with custom path
  kfabricd init --config /etc/kfabric/config.yaml

  # Force overwrite existing config
  kfabricd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: kfabricd start")
	fmt.Printf("  3. Or specify custom config: kfabricd start --config %s\n", configPath)

	return nil
}
