package loggerfx

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	ConfigLogLevel  = "log.level"
	ConfigLogFormat = "log.format"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logger.SetFormatter(NewFormatter(FormatJSON))
}

// Logger returns the process wide logger. It is usable before configuration
// is loaded, e.g. for fx's own output.
func Logger() *logrus.Logger {
	return logger
}

type LoggerConfig struct {
	Level  string
	Format string
}

func LoggerConfigProvider(v *viper.Viper) *LoggerConfig {
	return &LoggerConfig{
		Level:  v.GetString(ConfigLogLevel),
		Format: v.GetString(ConfigLogFormat),
	}
}

func NewFormatter(format string) logrus.Formatter {
	switch format {
	case FormatText:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		}
	default:
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		}
	}
}

func ConfigureLogger(logger *logrus.Logger, config *LoggerConfig) {
	logger.SetFormatter(NewFormatter(config.Format))

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		logger.WithField("level", config.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
}
