// Package logging builds the zap logger. The terminal belongs to the
// dashboard, so logs go to a rotating file unless a writer is given.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Options is the option set for the logger.
type Options struct {
	// Writer receives the log output instead of Filename when set.
	Writer io.Writer

	// Format is "console" (default) or "json".
	Format string

	// Filename is the file to write logs to. Backups are kept in the same directory.
	Filename string

	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	Level string
}

// ValidLevel reports whether level is one of debug, info, warn or error.
func ValidLevel(level string) bool {
	_, ok := levels[level]
	return ok
}

// DefaultFilename returns $XDG_STATE_HOME/tcpcount/tcpcount.log, falling
// back to ~/.local/state and then the temp dir.
func DefaultFilename() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "state")
		} else {
			dir = os.TempDir()
		}
	}
	return filepath.Join(dir, "tcpcount", "tcpcount.log")
}

// New returns a SugaredLogger and a function that flushes and closes its output.
func New(opt Options) (*zap.SugaredLogger, func(), error) {
	level, ok := levels[opt.Level]
	if !ok {
		if opt.Level != "" {
			return nil, nil, errors.Errorf("unknown log level %q", opt.Level)
		}
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	switch opt.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var (
		w       zapcore.WriteSyncer
		closeFn = func() {}
	)
	if opt.Writer != nil {
		w = zapcore.AddSync(opt.Writer)
	} else {
		if opt.Filename == "" {
			opt.Filename = DefaultFilename()
		}
		if err := os.MkdirAll(filepath.Dir(opt.Filename), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "failed to create log directory")
		}
		lj := &lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSize,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAge,
			LocalTime:  true,
		}
		w = zapcore.AddSync(lj)
		closeFn = func() { _ = lj.Close() }
	}

	logger := zap.New(zapcore.NewCore(encoder, w, level), zap.AddCaller())
	return logger.Sugar(), func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}
