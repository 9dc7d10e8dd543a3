package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how much a service logs.
type Config struct {
	// Name is used for the log file: <Dir>/<Name>.log
	Name  string `yaml:"name"`
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
	// Console also writes human readable logs to stderr.
	Console bool `yaml:"console"`
}

// InitLogger initializes and returns a Zap logger with Lumberjack for log rotation.
// give it a name to use for the log file
func InitLogger(n string) *zap.Logger {
	l, err := New(Config{Name: n})
	if err != nil {
		// Only a bad level can fail and the default level is valid.
		panic(err)
	}
	return l
}

// New builds a logger from c. Empty fields fall back to logs/, info level.
func New(c Config) (*zap.Logger, error) {
	if c.Name == "" {
		c.Name = "clocksync"
	}
	if c.Dir == "" {
		c.Dir = "logs"
	}
	level := zap.InfoLevel
	if c.Level != "" {
		l, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = l
	}

	w := zapcore.AddSync(RotatingFile(filepath.Join(c.Dir, c.Name+".log")))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		w,
		level,
	)
	if c.Console {
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewTee(core, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	return zap.New(core, zap.AddCaller()).Named(c.Name), nil
}

// RotatingFile returns a size-rotated, compressed log file writer.
func RotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}
