package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fc",
		Short:         "focuscoin (fc): earn coins by working, spend them to unlock distractions",
		Long:          "fc runs the focuscoin economy: a local wallet earned through productive activity and spent on timed or metered access to frivolous destinations, with emergency overrides and sync between devices.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return app.Close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(app),
		newWalletCmd(app),
		newRateCmd(app),
		newSessionCmd(app),
		newEmergencyCmd(app),
		newSyncCmd(app),
		newRunCmd(app),
	)

	return rootCmd
}
