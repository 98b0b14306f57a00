package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/onemin-relay/relay/internal/process"
	"github.com/onemin-relay/relay/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay service",
	Long:  `Start the relay service in the foreground. Without a config file the built-in defaults and environment overrides apply.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	// The relay runs fine without a config file; Get falls back to
	// defaults plus environment overrides.
	cfg := cfgMgr.Get()

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"api_url", cfg.OneMin.APIURL,
		"rate_limit_disabled", cfg.RateLimit.Disabled,
	)

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	srv := server.New(cfgMgr, logger)

	return srv.Start()
}
