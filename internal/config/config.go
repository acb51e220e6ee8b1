package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultUploadTimeout   = 60 * time.Second
	DefaultPipelineTimeout = 2 * time.Minute
	DefaultStorageRoot     = "/storage/emulated/0"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"Server"`
	Backend    BackendConfig    `mapstructure:"Backend"`
	Database   DatabaseConfig   `mapstructure:"Database"`
	Recordings RecordingsConfig `mapstructure:"Recordings"`
	Pipeline   PipelineConfig   `mapstructure:"Pipeline"`
	Platform   PlatformConfig   `mapstructure:"Platform"`
	Redis      RedisConfig      `mapstructure:"Redis"`
	S3         S3Config         `mapstructure:"S3"`
	Transcode  TranscodeConfig  `mapstructure:"Transcode"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	GRPCPort string `mapstructure:"GRPCPort"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"BaseURL"`
	Timeout time.Duration `mapstructure:"Timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"Driver"`
	DSN      string `mapstructure:"DSN"`
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type RecordingsConfig struct {
	// StorageRoot приписывается к относительному пути папки из настроек
	StorageRoot string `mapstructure:"StorageRoot"`
}

type PipelineConfig struct {
	Timeout          time.Duration `mapstructure:"Timeout"`
	SettleDelay      time.Duration `mapstructure:"SettleDelay"`
	MaxAttempts      int           `mapstructure:"MaxAttempts"`
	RetryBackoff     time.Duration `mapstructure:"RetryBackoff"`
	RequireFresh     bool          `mapstructure:"RequireFresh"`
	NotificationsCap int           `mapstructure:"NotificationsCap"`
}

type PlatformConfig struct {
	OS             string   `mapstructure:"OS"`
	SDKVersion     int      `mapstructure:"SDKVersion"`
	DialCommand    []string `mapstructure:"DialCommand"`
	CountryCode    string   `mapstructure:"CountryCode"`
	PermissionCmd  []string `mapstructure:"PermissionCmd"`
	GrantedPerms   []string `mapstructure:"GrantedPerms"`
	EventSource    string   `mapstructure:"EventSource"`
	EventChannel   string   `mapstructure:"EventChannel"`
	SessionBackend string   `mapstructure:"SessionBackend"`
}

type RedisConfig struct {
	Host     string `mapstructure:"Host"`
	Port     int    `mapstructure:"Port"`
	Username string `mapstructure:"Username"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"Enabled"`
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	Prefix          string `mapstructure:"Prefix"`
}

type TranscodeConfig struct {
	Enabled   bool     `mapstructure:"Enabled"`
	Formats   []string `mapstructure:"Formats"`
	OutputDir string   `mapstructure:"OutputDir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "8085")
	v.SetDefault("Server.GRPCPort", "50055")
	v.SetDefault("Backend.Timeout", DefaultUploadTimeout)
	v.SetDefault("Database.Driver", "sqlite3")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Recordings.StorageRoot", DefaultStorageRoot)
	v.SetDefault("Pipeline.Timeout", DefaultPipelineTimeout)
	v.SetDefault("Pipeline.SettleDelay", 1500*time.Millisecond)
	v.SetDefault("Pipeline.MaxAttempts", 1)
	v.SetDefault("Pipeline.RetryBackoff", 2*time.Second)
	v.SetDefault("Pipeline.NotificationsCap", 50)
	v.SetDefault("Platform.OS", "android")
	v.SetDefault("Platform.SDKVersion", 33)
	v.SetDefault("Platform.DialCommand", []string{"am", "start", "-a", "android.intent.action.CALL", "-d"})
	v.SetDefault("Platform.CountryCode", "+91")
	v.SetDefault("Platform.EventSource", "webhook")
	v.SetDefault("Platform.EventChannel", "rmscall:phone-state")
	v.SetDefault("Platform.SessionBackend", "memory")
	v.SetDefault("Redis.Host", "127.0.0.1")
	v.SetDefault("Redis.Port", 6379)
	v.SetDefault("Transcode.Formats", []string{".amr", ".3gp"})
	v.SetDefault("Transcode.OutputDir", "/tmp/rmscall")
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Переменные окружения RMSCALL_BACKEND_BASEURL и т.п.
	v.SetEnvPrefix("RMSCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("Backend.BaseURL", "RMSCALL_BACKEND_URL")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("S3.AccessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("S3.SecretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("Redis.Password", "REDIS_PASSWORD")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			fmt.Printf("Warning: using only environment variables: %v\n", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize проверяет обязательные поля и не допускает бесконечных таймаутов
func (c *Config) normalize() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend configuration is incomplete: BaseURL is required")
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")

	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = DefaultUploadTimeout
	}
	if c.Pipeline.Timeout <= 0 {
		c.Pipeline.Timeout = DefaultPipelineTimeout
	}
	if c.Pipeline.SettleDelay < 0 {
		c.Pipeline.SettleDelay = 0
	}
	if c.Pipeline.MaxAttempts < 1 {
		c.Pipeline.MaxAttempts = 1
	}
	if c.Recordings.StorageRoot == "" {
		c.Recordings.StorageRoot = DefaultStorageRoot
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			c.Database.DSN = "rmscall.db"
		}
	case "postgres", "mysql":
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Name == "") {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.S3.Enabled {
		if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" || c.S3.Bucket == "" {
			return fmt.Errorf("S3 archive enabled but AccessKeyID, SecretAccessKey and Bucket are required")
		}
	}

	return nil
}

// GetDSN собирает строку подключения для выбранного драйвера
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.Name,
			c.SSLMode,
		)
	}
}

// Addr возвращает адрес redis в формате host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
