package blobfx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
	"github.com/yurykabanov/sweeper/pkg/blobstore/local"
	"github.com/yurykabanov/sweeper/pkg/blobstore/s3"
)

const (
	ConfigBlobStoreDriver    = "blobstore.driver"
	ConfigBlobStoreLocalRoot = "blobstore.local.root"

	ConfigS3Bucket          = "blobstore.s3.bucket"
	ConfigS3Region          = "blobstore.s3.region"
	ConfigS3Endpoint        = "blobstore.s3.endpoint"
	ConfigS3AccessKeyID     = "blobstore.s3.access_key_id"
	ConfigS3SecretAccessKey = "blobstore.s3.secret_access_key"
	ConfigS3UsePathStyle    = "blobstore.s3.use_path_style"
	ConfigS3Prefix          = "blobstore.s3.prefix"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

type BlobStoreConfig struct {
	Driver    string
	LocalRoot string
	S3        s3.Config
}

func BlobStoreConfigProvider(v *viper.Viper) (*BlobStoreConfig, error) {
	config := &BlobStoreConfig{
		Driver:    v.GetString(ConfigBlobStoreDriver),
		LocalRoot: v.GetString(ConfigBlobStoreLocalRoot),
		S3: s3.Config{
			Bucket:          v.GetString(ConfigS3Bucket),
			Region:          v.GetString(ConfigS3Region),
			Endpoint:        v.GetString(ConfigS3Endpoint),
			AccessKeyID:     v.GetString(ConfigS3AccessKeyID),
			SecretAccessKey: v.GetString(ConfigS3SecretAccessKey),
			UsePathStyle:    v.GetBool(ConfigS3UsePathStyle),
			Prefix:          v.GetString(ConfigS3Prefix),
		},
	}

	switch config.Driver {
	case DriverLocal:
		if config.LocalRoot == "" {
			return nil, errors.New("blobstore.local.root is required for local driver")
		}
	case DriverS3:
		if config.S3.Bucket == "" {
			return nil, errors.New("blobstore.s3.bucket is required for s3 driver")
		}
	default:
		return nil, errors.Errorf("unknown blob store driver '%s'", config.Driver)
	}

	return config, nil
}

func BlobStore(config *BlobStoreConfig, logger *logrus.Logger) (blobstore.Store, error) {
	switch config.Driver {
	case DriverS3:
		logger.WithFields(logrus.Fields{
			"bucket":   config.S3.Bucket,
			"endpoint": config.S3.Endpoint,
		}).Debug("Using S3 blob store")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := s3.New(ctx, config.S3)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to create S3 blob store")
		}

		return store, nil
	default:
		logger.WithField("root", config.LocalRoot).Debug("Using local blob store")

		return local.New(config.LocalRoot), nil
	}
}
