package cmd

import (
	"github.com/spf13/cobra"

	"gokernel/kernel"
	"gokernel/logging"
)

var bootCmd = &cobra.Command{
	Use:     "boot",
	Aliases: []string{"run"},
	Short:   "Boot the kernel and drop into its shell",
	Long:    `Creates the idle and init processes (init then spawns the shell, and a new one whenever it exits) and runs until the process receives SIGINT/SIGTERM.`,
	Args:    cobra.NoArgs,
	RunE:    runBoot,
}

func init() {
	rootCmd.AddCommand(bootCmd)
}

func runBoot(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := logging.Default()

	k := kernel.New(log)
	defer k.Shutdown()

	if err := k.Boot(kernel.ShellEntry); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
