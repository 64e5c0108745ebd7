package models

import "time"

// SourceType identifies a data-source dump block in the config file.
type SourceType string

// Supported source types. The value is also the config key and the subdirectory name.
const (
	SourceElasticsearch SourceType = "elasticdump"
	SourceMySQL         SourceType = "mysqldump"
	SourcePostgres      SourceType = "pgdump"
	SourceMongo         SourceType = "mongodump"
	SourceInflux        SourceType = "influxdump"
)

// SourceOrder is the fixed order in which configured sources are dumped.
var SourceOrder = []SourceType{
	SourceElasticsearch,
	SourceMySQL,
	SourcePostgres,
	SourceMongo,
	SourceInflux,
}

// ConnectionConfig holds the type-specific connection fields of a dump block.
// Each adapter reads the subset it needs.
type ConnectionConfig struct {
	URL         string // elasticdump
	Host        string
	Port        int
	Username    string
	Password    string
	Database    string // influxdump
	Format      string // pgdump: plain (default), custom, tar
	DumpVersion int    // mongodump: 3 (default) or 4
	AuthDB      string // mongodump: authentication database, default admin
}

// SourceJob describes one configured dump block.
type SourceJob struct {
	Type        SourceType
	Subdir      string
	Include     []string
	Exclude     []string
	Conn        ConnectionConfig
	LowPriority bool
}

// DumpResult holds the result of one source dump.
type DumpResult struct {
	Type      SourceType
	Objects   []string // names of the dumped objects
	Skipped   []string // names deselected by the filter
	SizeBytes int64
	Duration  time.Duration
	Error     error
}
