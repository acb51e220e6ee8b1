package s3

import (
	"fmt"
	"path"
	"strings"

	"rmscall/internal/config"
)

const defaultRegion = "us-east-1"

type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UsePathStyle    bool
}

// NewConfig строит настройки архива из общей конфигурации агента
func NewConfig(cfg *config.S3Config) *Config {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	return &Config{
		Endpoint:        cfg.Endpoint,
		Region:          region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		// собственный endpoint почти всегда MinIO/Yandex с адресацией по пути
		UsePathStyle: cfg.Endpoint != "",
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is required")
	}
	if c.AccessKeyID == "" {
		return fmt.Errorf("AccessKeyID is required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("SecretAccessKey is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("Bucket is required")
	}
	return nil
}

// ArchiveKey - <prefix>/<ticket>/<profile>/<file>
func ArchiveKey(prefix, ticketID, profileID, fileName string) string {
	return strings.TrimPrefix(path.Join(prefix, ticketID, profileID, fileName), "/")
}
