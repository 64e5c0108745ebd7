// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fgeck/gorestic-backup/internal/env"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DefaultPruneOptions are passed to restic prune when the config does not set prune-options.
var DefaultPruneOptions = []string{"s3.list-objects-v1=true"}

// Parser handles configuration file parsing.
type Parser struct {
	v        *viper.Viper
	resolver *env.Resolver
}

// NewParser creates a new configuration parser. String values are resolved through resolver.
func NewParser(resolver *env.Resolver) *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v, resolver: resolver}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading config file %s: %v", models.ErrConfig, path, err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: reading config: %v", models.ErrConfig, err)
	}

	return p.parse()
}

// Loader loads the config file fresh on every call, so edits apply to the next run.
type Loader struct {
	path     string
	resolver *env.Resolver
}

// NewLoader creates a loader for path. An empty path yields the default config.
func NewLoader(path string, resolver *env.Resolver) *Loader {
	return &Loader{path: path, resolver: resolver}
}

// Path returns the config file path, or "" when none is configured.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and validates the config file.
func (l *Loader) Load() (*models.BackupConfig, error) {
	parser := NewParser(l.resolver)
	if l.path == "" {
		return parser.LoadReader("")
	}
	return parser.LoadFile(l.path)
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{
		LowPriority: true,
	}

	if p.v.IsSet("low-priority") {
		cfg.LowPriority = p.v.GetBool("low-priority")
	}

	// Parse pre-backup scripts.
	if p.v.IsSet("pre-backup-scripts") {
		var raw []struct {
			Script      string `mapstructure:"script"`
			FailOnError *bool  `mapstructure:"fail-on-error"`
			Description string `mapstructure:"description"`
		}
		if err := p.v.UnmarshalKey("pre-backup-scripts", &raw); err != nil {
			return nil, fmt.Errorf("%w: pre-backup-scripts must be a list of mappings: %v", models.ErrValidation, err)
		}
		for i, s := range raw {
			if strings.TrimSpace(s.Script) == "" {
				return nil, fmt.Errorf("%w: pre-backup-scripts[%d] does not contain a 'script' property", models.ErrValidation, i)
			}
			script := models.PreBackupScript{
				Script:      p.resolve(s.Script),
				FailOnError: true,
				Description: s.Description,
			}
			if s.FailOnError != nil {
				script.FailOnError = *s.FailOnError
			}
			cfg.PreBackupScripts = append(cfg.PreBackupScripts, script)
		}
	}

	// Parse source dump blocks in their fixed order.
	for _, t := range models.SourceOrder {
		key := string(t)
		if !p.v.IsSet(key) {
			continue
		}
		job, err := p.parseSource(t)
		if err != nil {
			return nil, err
		}
		job.LowPriority = cfg.LowPriority
		cfg.Sources = append(cfg.Sources, job)
	}

	// Parse backup settings. Root and Host come from the environment.
	cfg.Backup = models.BackupSettings{
		Tags:          p.resolveAll(p.stringList("tags")),
		Excludes:      p.resolveAll(p.stringList("exclude")),
		IncludeFrom:   p.resolveAll(p.stringList("include-from")),
		ExcludeCaches: true,
		IgnoreInode:   true,
		CacheDir:      p.resolve(p.v.GetString("cache-dir")),
		NoCache:       p.v.GetBool("no-cache"),
		LowPriority:   cfg.LowPriority,
	}
	if p.v.IsSet("exclude-caches") {
		cfg.Backup.ExcludeCaches = p.v.GetBool("exclude-caches")
	}
	if p.v.IsSet("ignore-inode") {
		cfg.Backup.IgnoreInode = p.v.GetBool("ignore-inode")
	}

	// Parse keep buckets.
	if p.v.IsSet("keep") {
		keep, err := p.parseKeep()
		if err != nil {
			return nil, err
		}
		cfg.Keep = keep
	}

	// Parse prune options.
	cfg.PruneOptions = DefaultPruneOptions
	if p.v.IsSet("prune-options") {
		cfg.PruneOptions = p.resolveAll(p.stringList("prune-options"))
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.resolve(p.v.GetString("telegram.bot-token")),
			ChatID:   p.resolve(p.v.GetString("telegram.chat-id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("%w: telegram.bot-token is required when telegram is configured", models.ErrValidation)
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("%w: telegram.chat-id is required when telegram is configured", models.ErrValidation)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

//nolint:gocyclo // one case per source type
func (p *Parser) parseSource(t models.SourceType) (models.SourceJob, error) {
	key := string(t)
	job := models.SourceJob{
		Type:    t,
		Subdir:  key,
		Include: p.resolveAll(p.stringList(key + ".include")),
		Exclude: p.resolveAll(p.stringList(key + ".exclude")),
		Conn: models.ConnectionConfig{
			URL:         p.resolve(p.v.GetString(key + ".url")),
			Host:        p.resolve(p.v.GetString(key + ".host")),
			Port:        p.v.GetInt(key + ".port"),
			Username:    p.resolve(p.v.GetString(key + ".username")),
			Password:    p.resolve(p.v.GetString(key + ".password")),
			Database:    p.resolve(p.v.GetString(key + ".database")),
			Format:      p.v.GetString(key + ".format"),
			DumpVersion: p.v.GetInt(key + ".dump_version"),
			AuthDB:      p.resolve(p.v.GetString(key + ".auth_database")),
		},
	}

	required := func(fields ...string) error {
		for _, f := range fields {
			if p.resolve(p.v.GetString(key+"."+f)) == "" {
				return fmt.Errorf("%w: %s.%s is required when %s is configured", models.ErrValidation, key, f, key)
			}
		}
		return nil
	}

	switch t {
	case models.SourceElasticsearch:
		if err := required("url"); err != nil {
			return job, err
		}
		job.Conn.URL = strings.TrimRight(job.Conn.URL, "/")
	case models.SourceMySQL:
		if err := required("host", "username", "password"); err != nil {
			return job, err
		}
		if job.Conn.Port == 0 {
			job.Conn.Port = 3306
		}
	case models.SourcePostgres:
		if err := required("host", "username", "password"); err != nil {
			return job, err
		}
		if job.Conn.Port == 0 {
			job.Conn.Port = 5432
		}
		if job.Conn.Format == "" {
			job.Conn.Format = "plain"
		}
		validFormats := map[string]bool{"plain": true, "custom": true, "tar": true}
		if !validFormats[job.Conn.Format] {
			return job, fmt.Errorf("%w: pgdump.format must be one of: plain, custom, tar", models.ErrValidation)
		}
	case models.SourceMongo:
		if err := required("host", "username", "password"); err != nil {
			return job, err
		}
		if job.Conn.Port == 0 {
			job.Conn.Port = 27017
		}
		if job.Conn.AuthDB == "" {
			job.Conn.AuthDB = "admin"
		}
		if job.Conn.DumpVersion == 0 {
			job.Conn.DumpVersion = 3
		}
		if job.Conn.DumpVersion != 3 && job.Conn.DumpVersion != 4 {
			return job, fmt.Errorf("%w: mongodump.dump_version must be 3 or 4", models.ErrValidation)
		}
	case models.SourceInflux:
		if err := required("host"); err != nil {
			return job, err
		}
		if job.Conn.Port == 0 {
			job.Conn.Port = 8088
		}
	}

	return job, nil
}

func (p *Parser) parseKeep() (models.KeepConfig, error) {
	keep := models.KeepConfig{}
	for bucket, value := range p.v.GetStringMap("keep") {
		if !models.IsKeepBucket(bucket) {
			return nil, fmt.Errorf("%w: unknown keep bucket %q (expected one of %s)",
				models.ErrValidation, bucket, strings.Join(models.KeepBuckets, ", "))
		}
		count, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: keep.%s must be an integer: %v", models.ErrValidation, bucket, err)
		}
		keep[bucket] = count
	}
	return keep, nil
}

// stringList reads a key that may hold a single string or a list of strings.
func (p *Parser) stringList(key string) []string {
	switch v := p.v.Get(key).(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return cast.ToStringSlice(v)
	}
}

func (p *Parser) resolve(s string) string {
	if p.resolver == nil {
		return s
	}
	return p.resolver.Resolve(s)
}

func (p *Parser) resolveAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, p.resolve(s))
	}
	return out
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", models.ErrConfig)
	}

	for _, job := range cfg.Sources {
		if err := ValidateSource(job); err != nil {
			return err
		}
	}

	for bucket := range cfg.Keep {
		if !models.IsKeepBucket(bucket) {
			return fmt.Errorf("%w: unknown keep bucket %q", models.ErrValidation, bucket)
		}
	}

	return nil
}

// ValidateSource checks the include/exclude rules of a single source job.
func ValidateSource(job models.SourceJob) error {
	if len(job.Include) > 0 && len(job.Exclude) > 0 {
		return fmt.Errorf("%w: %s: either include or exclude patterns are allowed, not both",
			models.ErrValidation, job.Type)
	}
	if job.Type == models.SourceInflux && (len(job.Include) > 0 || len(job.Exclude) > 0) {
		return fmt.Errorf("%w: %s does not support include/exclude patterns, use database instead",
			models.ErrValidation, job.Type)
	}
	for _, pattern := range append(append([]string{}, job.Include...), job.Exclude...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: %s: invalid pattern %q: %v", models.ErrValidation, job.Type, pattern, err)
		}
	}
	return nil
}
