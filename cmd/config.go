package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/onemin-relay/relay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the relay configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Write a configuration file populated with the built-in defaults, ready to edit.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, including defaults and environment overrides.`,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println(cfgMgr.GetPath())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if cfgMgr.Exists() {
		color.Yellow("Configuration already exists at: %s", cfgMgr.GetPath())
		return nil
	}

	cfg := &config.Config{
		Host: config.DefaultHost,
		Port: config.DefaultPort,
		OneMin: config.OneMin{
			APIURL:          config.DefaultAPIURL,
			StreamingAPIURL: config.DefaultStreamingAPIURL,
			AssetURL:        config.DefaultAssetURL,
		},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the relay with: %s start", AppName)

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg := cfgMgr.Get()

	color.Blue("Current Configuration:")
	fmt.Printf("  %-20s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-20s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-20s: %s\n", "Auth Token", maskString(cfg.AuthToken))
	fmt.Printf("  %-20s: %s\n", "API URL", cfg.OneMin.APIURL)
	fmt.Printf("  %-20s: %s\n", "Streaming API URL", cfg.OneMin.StreamingAPIURL)
	fmt.Printf("  %-20s: %s\n", "Asset URL", cfg.OneMin.AssetURL)
	fmt.Printf("  %-20s: %v\n", "Rate Limit Disabled", cfg.RateLimit.Disabled)

	if cfg.WebSearch.NumOfSite != "" {
		fmt.Printf("  %-20s: %s\n", "Web Search Sites", cfg.WebSearch.NumOfSite)
	}

	if cfg.WebSearch.MaxWord != "" {
		fmt.Printf("  %-20s: %s\n", "Web Search Max Words", cfg.WebSearch.MaxWord)
	}

	fmt.Printf("  %-20s: %s\n", "Config Path", cfgMgr.GetPath())

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return "****"
	}

	return s[:4] + "..." + s[len(s)-4:]
}
