package config

import (
	"fmt"

	"github.com/fgeck/gorestic-backup/internal/env"
	"github.com/fgeck/gorestic-backup/internal/models"
)

// Environment variable names read at startup.
const (
	EnvRepository      = "RESTIC_REPOSITORY"
	EnvPassword        = "RESTIC_PASSWORD"
	EnvPasswordFile    = "RESTIC_PASSWORD_FILE"
	EnvPasswordCommand = "RESTIC_PASSWORD_COMMAND"
	EnvHostname        = "BACKUP_HOSTNAME"
	EnvBackupRoot      = "BACKUP_ROOT"
	EnvConfig          = "BACKUP_CONFIG"
	EnvPruneTimeout    = "RESTIC_PRUNE_TIMEOUT"
)

// LoadEnvironment reads and validates the startup environment.
// configOverride, when non-empty, replaces BACKUP_CONFIG.
func LoadEnvironment(resolver *env.Resolver, configOverride string) (*models.Environment, error) {
	e := &models.Environment{}

	var err error
	if e.Repository, err = requireEnv(resolver, EnvRepository); err != nil {
		return nil, err
	}
	if e.Hostname, err = requireEnv(resolver, EnvHostname); err != nil {
		return nil, err
	}
	if e.BackupRoot, err = requireEnv(resolver, EnvBackupRoot); err != nil {
		return nil, err
	}

	e.Password = resolver.Get(EnvPassword, "")
	if e.Password == "" {
		_, hasFile := resolver.Lookup(EnvPasswordFile)
		_, hasCommand := resolver.Lookup(EnvPasswordCommand)
		if !hasFile && !hasCommand {
			return nil, fmt.Errorf("%w: please set the environment variable %s", models.ErrConfig, EnvPassword)
		}
	}

	e.ConfigPath = configOverride
	if e.ConfigPath == "" {
		e.ConfigPath = resolver.Get(EnvConfig, "")
	}

	e.PruneTimeoutToken = resolver.Get(EnvPruneTimeout, "")
	if e.PruneTimeout, err = ParsePruneTimeout(e.PruneTimeoutToken); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvPruneTimeout, err)
	}

	return e, nil
}

func requireEnv(resolver *env.Resolver, name string) (string, error) {
	value, ok := resolver.Lookup(name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: please set the environment variable %s", models.ErrConfig, name)
	}
	return value, nil
}
