package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. AUDITDEMO_BUCKET
const EnvPrefix = "AUDITDEMO"

type Config struct {
	MinIO     MinIOConfig
	Demo      DemoConfig
	Paths     PathsConfig
	Dashboard DashboardConfig
	LogLevel  string `validate:"oneof=trace debug info warn error"`
}

type MinIOConfig struct {
	Endpoint  string `validate:"required,hostname_port"`
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
	UseSSL    bool
	Region    string `validate:"required"`
	Bucket    string `validate:"required,min=3,max=63"`
}

type DemoConfig struct {
	MinFiles      int           `validate:"min=1"`
	MaxFiles      int           `validate:"gtefield=MinFiles"`
	MinSize       int64         `validate:"min=1"`
	MaxSize       int64         `validate:"gtefield=MinSize"`
	DownloadLimit int           `validate:"min=0"`
	Delay         time.Duration `validate:"min=0"`
	ListPrefix    string
	MissingKey    string `validate:"required"`
	Interactive   bool
}

type PathsConfig struct {
	UploadDir   string `validate:"required"`
	DownloadDir string `validate:"required"`
	// JournalPath is the sqlite journal file; empty disables journaling
	JournalPath string
}

type DashboardConfig struct {
	ParseableURL string
	ConsoleURL   string
	AuditStream  string
	LogStream    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "minioadmin")
	v.SetDefault("minio_secret_key", "minioadmin")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_region", "us-east-1")
	v.SetDefault("bucket", "demo-bucket")

	v.SetDefault("min_files", 1)
	v.SetDefault("max_files", 5)
	v.SetDefault("min_size", 1000)
	v.SetDefault("max_size", 50000)
	v.SetDefault("download_limit", 2)
	v.SetDefault("delay", "500ms")
	v.SetDefault("list_prefix", "sample")
	v.SetDefault("missing_key", "non-existent-file.txt")
	v.SetDefault("interactive", false)

	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("journal_path", "auditdemo.db")

	v.SetDefault("parseable_url", "http://localhost:8000")
	v.SetDefault("console_url", "http://localhost:9001")
	v.SetDefault("audit_stream", "minio_audit")
	v.SetDefault("log_stream", "minio_log")

	v.SetDefault("log_level", "info")
}

// Load reads configuration from defaults, an optional dotenv file and the
// environment, in increasing order of precedence. An empty envFile means
// ".env" in the working directory, which may be absent.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			UseSSL:    v.GetBool("minio_use_ssl"),
			Region:    v.GetString("minio_region"),
			Bucket:    v.GetString("bucket"),
		},
		Demo: DemoConfig{
			MinFiles:      v.GetInt("min_files"),
			MaxFiles:      v.GetInt("max_files"),
			MinSize:       v.GetInt64("min_size"),
			MaxSize:       v.GetInt64("max_size"),
			DownloadLimit: v.GetInt("download_limit"),
			Delay:         v.GetDuration("delay"),
			ListPrefix:    v.GetString("list_prefix"),
			MissingKey:    v.GetString("missing_key"),
			Interactive:   v.GetBool("interactive"),
		},
		Paths: PathsConfig{
			UploadDir:   v.GetString("upload_dir"),
			DownloadDir: v.GetString("download_dir"),
			JournalPath: v.GetString("journal_path"),
		},
		Dashboard: DashboardConfig{
			ParseableURL: v.GetString("parseable_url"),
			ConsoleURL:   v.GetString("console_url"),
			AuditStream:  v.GetString("audit_stream"),
			LogStream:    v.GetString("log_stream"),
		},
		LogLevel: strings.ToLower(v.GetString("log_level")),
	}

	return cfg, nil
}

// Validate checks field constraints and that every range is ordered
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
