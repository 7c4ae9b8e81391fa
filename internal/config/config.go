// Package config layers command-line flags, TCPCOUNT_* environment
// variables, an optional YAML file and defaults into one validated Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nozo-moto/tcpcount/internal/filter"
	"github.com/nozo-moto/tcpcount/internal/logging"
)

const (
	EnvPrefix = "TCPCOUNT"
	AppName   = "tcpcount"

	KeyPID         = "pid"
	KeyProcessName = "process-name"
	KeyHost        = "host"
	KeyPort        = "port"
	KeyInterval    = "interval"
	KeyRefresh     = "refresh"
	KeyHistorySize = "history-size"
	KeyNoResolve   = "no-resolve"
	KeyMetricsAddr = "metrics-addr"

	KeyLogFile       = "log.file"
	KeyLogLevel      = "log.level"
	KeyLogMaxSize    = "log.max-size"
	KeyLogMaxBackups = "log.max-backups"
	KeyLogMaxAge     = "log.max-age"

	MinInterval = 100 * time.Millisecond
)

// Error is a malformed configuration value. It is fatal at startup.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	Filter      filter.Predicate
	Interval    time.Duration
	Refresh     time.Duration
	HistorySize int
	Resolve     bool
	MetricsAddr string
	Log         logging.Options

	// File is the config file that was read, "" when none.
	File string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyInterval, time.Second)
	v.SetDefault(KeyRefresh, 250*time.Millisecond)
	v.SetDefault(KeyHistorySize, 300)
	v.SetDefault(KeyNoResolve, false)
	v.SetDefault(KeyMetricsAddr, "")

	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogMaxSize, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAge, 7)
}

// BindFlags registers the command line on cmd and binds every flag to its key.
func BindFlags(v *viper.Viper, cmd *cobra.Command) error {
	fs := cmd.Flags()
	fs.StringP(KeyPID, "p", "", "only count connections owned by this pid")
	fs.StringP(KeyProcessName, "n", "", "only count processes whose name contains this text (case-sensitive)")
	fs.StringP(KeyHost, "H", "", "only count remote hosts whose address or name contains this text")
	fs.StringP(KeyPort, "P", "", "only count connections to this remote port")
	fs.Duration(KeyInterval, time.Second, "socket poll interval")
	fs.Duration(KeyRefresh, 250*time.Millisecond, "screen refresh interval")
	fs.Int(KeyHistorySize, 300, "number of samples kept for the graph")
	fs.Bool(KeyNoResolve, false, "do not reverse-resolve remote addresses")
	fs.String(KeyMetricsAddr, "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.String("log-file", "", "log file (default $XDG_STATE_HOME/tcpcount/tcpcount.log)")
	fs.String("log-level", "info", "log level: debug, info, warn or error")

	binds := map[string]string{
		KeyPID:         KeyPID,
		KeyProcessName: KeyProcessName,
		KeyHost:        KeyHost,
		KeyPort:        KeyPort,
		KeyInterval:    KeyInterval,
		KeyRefresh:     KeyRefresh,
		KeyHistorySize: KeyHistorySize,
		KeyNoResolve:   KeyNoResolve,
		KeyMetricsAddr: KeyMetricsAddr,
		KeyLogFile:     "log-file",
		KeyLogLevel:    "log-level",
	}
	for key, name := range binds {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return errors.Wrapf(err, "failed to bind flag %s", name)
		}
	}
	return nil
}

// DefaultFile returns $XDG_CONFIG_HOME/tcpcount/config.yaml, or the
// ~/.config equivalent.
func DefaultFile() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// Load reads the optional file and resolves every key. An explicit path
// must exist; the default file is read only when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, &Error{Key: "config", Err: err}
			}
			cfg.File = v.ConfigFileUsed()
		}
	}

	pred, err := filter.Parse(
		v.GetString(KeyPID),
		v.GetString(KeyProcessName),
		v.GetString(KeyHost),
		v.GetString(KeyPort),
	)
	if err != nil {
		var fe *filter.FieldError
		if errors.As(err, &fe) {
			return nil, &Error{Key: fe.Field, Err: err}
		}
		return nil, &Error{Key: "filter", Err: err}
	}
	cfg.Filter = pred

	if cfg.Interval, err = duration(v, KeyInterval); err != nil {
		return nil, err
	}
	if cfg.Interval < MinInterval {
		return nil, &Error{Key: KeyInterval, Err: errors.Errorf("%s is below the minimum of %s", cfg.Interval, MinInterval)}
	}
	if cfg.Refresh, err = duration(v, KeyRefresh); err != nil {
		return nil, err
	}
	if cfg.Refresh <= 0 {
		return nil, &Error{Key: KeyRefresh, Err: errors.New("must be positive")}
	}

	if cfg.HistorySize, err = integer(v, KeyHistorySize); err != nil {
		return nil, err
	}
	if cfg.HistorySize < 1 {
		return nil, &Error{Key: KeyHistorySize, Err: errors.Errorf("%d is below 1", cfg.HistorySize)}
	}

	noResolve, err := cast.ToBoolE(v.Get(KeyNoResolve))
	if err != nil {
		return nil, &Error{Key: KeyNoResolve, Err: err}
	}
	cfg.Resolve = !noResolve
	cfg.MetricsAddr = v.GetString(KeyMetricsAddr)

	cfg.Log = logging.Options{
		Filename: v.GetString(KeyLogFile),
		Level:    strings.ToLower(v.GetString(KeyLogLevel)),
	}
	if !logging.ValidLevel(cfg.Log.Level) {
		return nil, &Error{Key: KeyLogLevel, Err: errors.Errorf("unknown level %q", cfg.Log.Level)}
	}
	for key, dst := range map[string]*int{
		KeyLogMaxSize:    &cfg.Log.MaxSize,
		KeyLogMaxBackups: &cfg.Log.MaxBackups,
		KeyLogMaxAge:     &cfg.Log.MaxAge,
	} {
		if *dst, err = integer(v, key); err != nil {
			return nil, err
		}
	}
	if cfg.Log.Filename == "" {
		cfg.Log.Filename = logging.DefaultFilename()
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := cast.ToDurationE(v.Get(key))
	if err != nil {
		return 0, &Error{Key: key, Err: err}
	}
	return d, nil
}

func integer(v *viper.Viper, key string) (int, error) {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return 0, &Error{Key: key, Err: err}
	}
	return n, nil
}
