package properties

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	SourceCopernicus = "copernicus"
	SourceDirectory  = "directory"
	SourceMemory     = "memory"

	ExportLocal = "local"
	ExportGCS   = "gcs"
	ExportNone  = "none"
)

type Config struct {
	RootPath     string `env:"ROOT_PATH,default=."`
	AOIPath      string `env:"AOI_PATH"`
	AOIFeatureID string `env:"AOI_FEATURE_ID"`
	StartYear    int    `env:"START_YEAR"`
	EndYear      int    `env:"END_YEAR"`

	ResolutionMeters          float64       `env:"RESOLUTION_METERS,default=10"`
	MaxCloudCover             float64       `env:"MAX_CLOUD_COVER,default=20"`
	CloudProbabilityThreshold float64       `env:"CLOUD_PROBABILITY_THRESHOLD,default=40"`
	Workers                   int           `env:"WORKERS,default=4"`
	SceneWorkers              int           `env:"SCENE_WORKERS,default=4"`
	MonthTimeout              time.Duration `env:"MONTH_TIMEOUT,default=10m"`
	MaxPixels                 int64         `env:"MAX_PIXELS,default=50000000"`
	SampleStride              int           `env:"SAMPLE_STRIDE,default=1"`

	Source   string `env:"SOURCE,default=copernicus"`
	SceneDir string `env:"SCENE_DIR"`

	CopernicusClientID     string `env:"COPERNICUS_CLIENT_ID"`
	CopernicusClientSecret string `env:"COPERNICUS_CLIENT_SECRET"`
	CopernicusTokenURL     string `env:"COPERNICUS_TOKEN_URL,default=https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	CopernicusBaseURL      string `env:"COPERNICUS_BASE_URL,default=https://sh.dataspace.copernicus.eu"`

	ExportMode string `env:"EXPORT_MODE,default=none"`
	ExportDir  string `env:"EXPORT_DIR"`
	GCSBucket  string `env:"GCS_BUCKET"`

	HistoryDB string `env:"HISTORY_DB"`

	DiscordErrorNotificationURL   string `env:"DISCORD_ERROR_NOTIFICATION_URL"`
	DiscordSuccessNotificationURL string `env:"DISCORD_SUCCESS_NOTIFICATION_URL"`

	GrpcPort int `env:"GRPC_PORT,default=50051"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// LoadEnvFiles loads the first .env file that exists among paths.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		err := godotenv.Load(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// LoadFrom reads the configuration from a fixed set of variables instead of
// the process environment.
func LoadFrom(ctx context.Context, vars map[string]string) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(vars),
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.StartYear <= 0 || c.EndYear <= 0 {
		return fmt.Errorf("START_YEAR and END_YEAR are required")
	}
	if c.EndYear < c.StartYear {
		return fmt.Errorf("END_YEAR %d is before START_YEAR %d", c.EndYear, c.StartYear)
	}
	return c.ValidateService()
}

// ValidateService checks everything except the year range, which gRPC
// requests carry themselves.
func (c *Config) ValidateService() error {
	if c.ResolutionMeters <= 0 {
		return fmt.Errorf("RESOLUTION_METERS must be positive")
	}
	if c.Workers < 1 || c.SceneWorkers < 1 {
		return fmt.Errorf("WORKERS and SCENE_WORKERS must be at least 1")
	}
	if c.SampleStride < 1 {
		return fmt.Errorf("SAMPLE_STRIDE must be at least 1")
	}
	switch c.Source {
	case SourceCopernicus:
		if c.CopernicusClientID == "" || c.CopernicusClientSecret == "" {
			return fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID or COPERNICUS_CLIENT_SECRET")
		}
	case SourceDirectory:
		if c.SceneDir == "" {
			return fmt.Errorf("SCENE_DIR is required when SOURCE=directory")
		}
	case SourceMemory:
	default:
		return fmt.Errorf("unknown SOURCE %q", c.Source)
	}
	switch c.ExportMode {
	case ExportLocal, ExportNone:
	case ExportGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when EXPORT_MODE=gcs")
		}
	default:
		return fmt.Errorf("unknown EXPORT_MODE %q", c.ExportMode)
	}
	return nil
}

// CopernicusCredentials splits the comma-separated client ids and secrets
// into pairs.
func (c *Config) CopernicusCredentials() ([][2]string, error) {
	ids := strings.Split(c.CopernicusClientID, ",")
	secrets := strings.Split(c.CopernicusClientSecret, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	pairs := make([][2]string, 0, len(ids))
	for i := range ids {
		id, secret := strings.TrimSpace(ids[i]), strings.TrimSpace(secrets[i])
		if id == "" || secret == "" {
			continue
		}
		pairs = append(pairs, [2]string{id, secret})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no Copernicus client credentials configured")
	}
	return pairs, nil
}

func (c *Config) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, elem...)...)
}

func (c *Config) ResolvedExportDir() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return c.DataPath("exports")
}

func (c *Config) ResolvedHistoryDB() string {
	if c.HistoryDB != "" {
		return c.HistoryDB
	}
	return c.DataPath("history.db")
}
