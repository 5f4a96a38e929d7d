package configfx

import (
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "sweeper"
	DefaultConfigDirectory = "sweeper"
	DefaultConfigFile      = "sweeper"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}

	defaults = map[string]interface{}{
		"log.level":  "info",
		"log.format": "json",

		"db.dsn": "./db/sweeper.db?_busy_timeout=5000&_foreign_keys=on",

		"server.address":       ":8080",
		"server.timeout.read":  15 * time.Second,
		"server.timeout.write": 60 * time.Second,
		"server.log.requests":  true,

		"blobstore.driver":     "local",
		"blobstore.local.root": "./blobs",

		"retention.tick":                 "@every 1m",
		"retention.default_schedule":     "@daily",
		"retention.stale_after":          time.Hour,
		"retention.catalog_timeout":      30 * time.Second,
		"retention.commit_timeout":       60 * time.Second,
		"retention.snapshot_concurrency": 4,
	}
)

func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	err := v.BindPFlags(flagSet)
	if err != nil {
		return nil, err
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName(DefaultConfigFile)

	// Read config from config file
	if configFile := v.GetString(FlagConfig); configFile != "" {
		// If user do specify config file, then this file MUST exist and be valid
		// so missing file is a fatal error

		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		// If user does not specify config file, then we'll still try to find appropriate config,
		// but missing file is not an error

		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			logger.WithError(err).Warn("Couldn't read config file")
		}
	}

	return v, nil
}
