package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Settings holds tool settings (settings file + WORKBENCH_* env + flags).
// Tenant connections live in separate environment files.
type Settings struct {
	LogLevel       string
	LogFile        string
	Listen         string
	BatchSize      int
	PageSize       int
	DashboardSleep time.Duration
	DatamodelSleep time.Duration
	DotEnv         string
	// Environment files preloaded by the API server.
	Environments []string
}

// NewViper returns a viper instance with defaults and the WORKBENCH_ env prefix.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WORKBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("batch_size", 10)
	v.SetDefault("page_size", 50)
	v.SetDefault("dashboard_sleep_seconds", 10)
	v.SetDefault("datamodel_sleep_seconds", 5)
	v.SetDefault("dotenv", ".env")
	return v
}

// LoadSettings reads the optional settings file at path through fs and
// returns the merged settings. An empty path skips the file.
func LoadSettings(v *viper.Viper, fs afero.Fs, path string) (*Settings, error) {
	if path != "" {
		if ok, _ := afero.Exists(fs, path); !ok {
			return nil, fmt.Errorf("settings file %s not found", path)
		}
		v.SetFs(fs)
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings %s: %w", path, err)
		}
	}

	s := &Settings{
		LogLevel:       v.GetString("log.level"),
		LogFile:        v.GetString("log.file"),
		Listen:         v.GetString("listen"),
		BatchSize:      v.GetInt("batch_size"),
		PageSize:       v.GetInt("page_size"),
		DashboardSleep: seconds(v.Get("dashboard_sleep_seconds")),
		DatamodelSleep: seconds(v.Get("datamodel_sleep_seconds")),
		DotEnv:         v.GetString("dotenv"),
		Environments:   cast.ToStringSlice(v.Get("environments")),
	}
	if s.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive, got %d", s.BatchSize)
	}
	if s.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be positive, got %d", s.PageSize)
	}
	return s, nil
}

// seconds accepts a number of seconds or a duration string ("1m").
func seconds(v any) time.Duration {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return time.Duration(cast.ToFloat64(v) * float64(time.Second))
}

// NewLogger builds the process logger from the settings. An unparsable
// level keeps info; a log file that cannot be opened keeps stderr.
func (s *Settings) NewLogger(stderr io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)

	if s.LogLevel != "" {
		level, err := logrus.ParseLevel(s.LogLevel)
		if err != nil {
			logger.Infof("failed to parse log level, default will be used: %s", err)
		} else {
			logger.SetLevel(level)
		}
	}

	if s.LogFile != "" {
		file, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Infof("failed to log to file, using default stderr: %s", err)
		} else {
			logger.SetOutput(file)
		}
	}
	return logger
}
