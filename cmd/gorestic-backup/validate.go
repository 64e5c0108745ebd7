package main

import (
	"fmt"
	"strings"

	"github.com/fgeck/gorestic-backup/internal/config"
	"github.com/fgeck/gorestic-backup/internal/env"
	"github.com/fgeck/gorestic-backup/internal/services/retention"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate environment and configuration file",
	Long:  `Validate the environment and the configuration file without touching the repository.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	resolver := env.New()

	environment, err := config.LoadEnvironment(resolver, configFile)
	if err != nil {
		log.Error().Err(err).Msg("invalid environment")
		return err
	}

	cfg, err := config.NewLoader(environment.ConfigPath, resolver).Load()
	if err != nil {
		log.Error().Err(err).Str("file", environment.ConfigPath).Msg("configuration validation failed")
		return err
	}

	policy, err := retention.NewEngine(log.Logger, resolver).Policy(cfg.Keep)
	if err != nil {
		log.Error().Err(err).Msg("invalid retention policy")
		return err
	}

	configPath := environment.ConfigPath
	if configPath == "" {
		configPath = "(none, defaults apply)"
	}
	timeout := "none"
	if environment.PruneTimeout > 0 {
		timeout = fmt.Sprintf("%s (%s)", environment.PruneTimeoutToken, environment.PruneTimeout)
	}

	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Repository: %s\n", environment.Repository)
	fmt.Printf("  Host: %s\n", environment.Hostname)
	fmt.Printf("  Backup root: %s\n", environment.BackupRoot)
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Prune timeout: %s\n", timeout)
	fmt.Printf("  Tags: %v\n", cfg.Backup.Tags)
	fmt.Printf("  Low priority: %v\n", cfg.LowPriority)

	fmt.Println()
	fmt.Printf("Pre-backup scripts: %d\n", len(cfg.PreBackupScripts))
	for i, script := range cfg.PreBackupScripts {
		desc := script.Description
		if desc == "" {
			desc = script.Script
		}
		fmt.Printf("  [%d] %s (fail-on-error: %v)\n", i, desc, script.FailOnError)
	}

	fmt.Println()
	fmt.Printf("Sources: %d\n", len(cfg.Sources))
	for _, job := range cfg.Sources {
		fmt.Printf("  %s -> %s\n", job.Type, job.Subdir)
		if len(job.Include) > 0 {
			fmt.Printf("    include: %s\n", strings.Join(job.Include, ", "))
		}
		if len(job.Exclude) > 0 {
			fmt.Printf("    exclude: %s\n", strings.Join(job.Exclude, ", "))
		}
	}

	fmt.Println()
	fmt.Println("Retention Policy:")
	if policy.Empty() {
		fmt.Println("  none (snapshots are kept forever)")
	} else {
		fmt.Printf("  Source: %s\n", policy.Source)
		for _, rule := range policy.Rules {
			fmt.Printf("  Keep %s: %d\n", rule.Bucket, rule.Count)
		}
	}
	fmt.Printf("  Prune options: %v\n", cfg.PruneOptions)

	fmt.Println()
	fmt.Printf("Telegram: %v\n", cfg.Telegram != nil)
	if cfg.Telegram != nil {
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
