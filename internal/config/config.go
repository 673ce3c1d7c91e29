// Package config resolves mirror-sync settings from flags, MIRROR_SYNC_*
// environment variables and an optional config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/mirror-sync/pkg/planner"
)

const EnvPrefix = "MIRROR_SYNC"

const (
	DefaultInterval = 60
	DefaultLogFile  = "mirror-sync.log"
	DefaultLogLevel = "info"
)

// Keys used in config files and, upper-cased, in environment variables.
const (
	KeyInterval       = "interval"
	KeyLogFile        = "log_file"
	KeyExclude        = "exclude"
	KeyCompare        = "compare"
	KeyOnce           = "once"
	KeyQuiet          = "quiet"
	KeyLogLevel       = "log_level"
	KeyReportJSONFile = "report_json_file"
	KeyReportS3URI    = "report_s3_uri"
	KeyProfile        = "profile"
	KeyRegion         = "region"
)

type Config struct {
	Source         string
	Replica        string
	Interval       time.Duration
	LogFile        string
	Excludes       []string
	Compare        planner.CompareMode
	Once           bool
	Quiet          bool
	LogLevel       string
	ReportJSONFile string
	ReportS3URI    string
	Profile        string
	Region         string
}

// NewViper returns a viper instance with defaults and environment lookup set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyInterval, DefaultInterval)
	v.SetDefault(KeyLogFile, DefaultLogFile)
	v.SetDefault(KeyCompare, string(planner.CompareContent))
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a yaml, json or toml config file into v. An empty path is
// a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config read '%s': %w", path, err)
	}
	return nil
}

// Load builds a Config from v for the given source and replica directories.
// Paths are made absolute; nothing is checked on disk until Validate.
func Load(v *viper.Viper, source, replica string) (*Config, error) {
	srcAbs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("path %q cannot be converted to absolute: %w", source, err)
	}
	replicaAbs, err := filepath.Abs(replica)
	if err != nil {
		return nil, fmt.Errorf("path %q cannot be converted to absolute: %w", replica, err)
	}

	cfg := &Config{
		Source:         srcAbs,
		Replica:        replicaAbs,
		Interval:       time.Duration(v.GetInt(KeyInterval)) * time.Second,
		LogFile:        v.GetString(KeyLogFile),
		Excludes:       v.GetStringSlice(KeyExclude),
		Compare:        planner.CompareMode(strings.ToLower(v.GetString(KeyCompare))),
		Once:           v.GetBool(KeyOnce),
		Quiet:          v.GetBool(KeyQuiet),
		LogLevel:       v.GetString(KeyLogLevel),
		ReportJSONFile: v.GetString(KeyReportJSONFile),
		ReportS3URI:    v.GetString(KeyReportS3URI),
		Profile:        v.GetString(KeyProfile),
		Region:         v.GetString(KeyRegion),
	}
	for _, p := range []*string{&cfg.LogFile, &cfg.ReportJSONFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("path %q cannot be converted to absolute: %w", *p, err)
		}
		*p = abs
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validateDirectory(c.Source); err != nil {
		return fmt.Errorf("source directory is invalid: %w", err)
	}
	if err := validateDirectory(c.Replica); err != nil {
		return fmt.Errorf("replica directory is invalid: %w", err)
	}
	if c.Source == c.Replica {
		return errors.New("source and replica cannot be the same directory")
	}
	if within(c.Source, c.Replica) {
		return fmt.Errorf("replica %q is inside source %q", c.Replica, c.Source)
	}
	if within(c.Replica, c.Source) {
		return fmt.Errorf("source %q is inside replica %q", c.Source, c.Replica)
	}
	if c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %s", c.Interval)
	}
	if c.LogFile == "" {
		return errors.New("log file path must not be empty")
	}
	for _, f := range []struct{ name, path string }{{"log file", c.LogFile}, {"report file", c.ReportJSONFile}} {
		if f.path == "" {
			continue
		}
		if within(c.Source, f.path) || within(c.Replica, f.path) {
			return fmt.Errorf("%s %q must be outside source and replica", f.name, f.path)
		}
	}
	if !c.Compare.Valid() {
		return fmt.Errorf("unknown compare mode %q (want %q or %q)", c.Compare, planner.CompareContent, planner.CompareQuick)
	}
	for _, pattern := range c.Excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if c.ReportS3URI != "" && !strings.HasPrefix(c.ReportS3URI, "s3://") {
		return fmt.Errorf("report S3 URI must start with s3://, got %q", c.ReportS3URI)
	}
	return nil
}

func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path %q is not a directory", path)
	}
	return nil
}

// within reports whether child lies below parent. Both must be absolute.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
