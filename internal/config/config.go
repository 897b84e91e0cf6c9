package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

var singleConfig *Config = nil

type Config struct {
	Database     *dbConfig
	Service      *svcConfig
	Orchestrator *orchestratorConfig
	Storage      *storageConfig
	Events       *eventsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"orchestrator"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string   `envconfig:"ORCHESTRATOR_ADDRESS" default:":3443"`
	MetricsAddress string   `envconfig:"ORCHESTRATOR_METRICS_ADDRESS" default:":8080"`
	LogLevel       string   `envconfig:"ORCHESTRATOR_LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"ORCHESTRATOR_LOG_FORMAT" default:"console"`
	PhasesFile     string   `envconfig:"ORCHESTRATOR_PHASES_FILE" default:""`
	AllowedOrigins []string `envconfig:"ORCHESTRATOR_ALLOWED_ORIGINS" default:"*"`
}

type orchestratorConfig struct {
	PollInterval   time.Duration `envconfig:"ORCHESTRATOR_POLL_INTERVAL" default:"10s"`
	WatcherTimeout time.Duration `envconfig:"ORCHESTRATOR_WATCHER_TIMEOUT" default:"30m"`
	MaxRetries     int           `envconfig:"ORCHESTRATOR_MAX_RETRIES" default:"2"`
	RetryDelay     time.Duration `envconfig:"ORCHESTRATOR_RETRY_DELAY" default:"30s"`
	StaggerDelay   time.Duration `envconfig:"ORCHESTRATOR_STAGGER_DELAY" default:"3s"`
	ConflictWindow int           `envconfig:"ORCHESTRATOR_CONFLICT_WINDOW" default:"100"`
	MaxCycles      int           `envconfig:"ORCHESTRATOR_MAX_CYCLES" default:"5"`
	SpawnerURL     string        `envconfig:"ORCHESTRATOR_SPAWNER_URL" default:""`
	SpawnerTimeout time.Duration `envconfig:"ORCHESTRATOR_SPAWNER_TIMEOUT" default:"15s"`
	AutoAdvance    bool          `envconfig:"ORCHESTRATOR_AUTO_ADVANCE" default:"false"`
}

type storageConfig struct {
	Type  string `envconfig:"ORCHESTRATOR_STORAGE_TYPE" default:"memory"`
	Minio minioConfig
	Redis redisConfig
}

type minioConfig struct {
	Endpoint  string `envconfig:"ORCHESTRATOR_MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"ORCHESTRATOR_MINIO_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"ORCHESTRATOR_MINIO_SECRET_KEY" default:""`
	Bucket    string `envconfig:"ORCHESTRATOR_MINIO_BUCKET" default:"phase-channels"`
	UseSSL    bool   `envconfig:"ORCHESTRATOR_MINIO_USE_SSL" default:"false"`
}

type redisConfig struct {
	Address  string `envconfig:"ORCHESTRATOR_REDIS_ADDRESS" default:"localhost:6379"`
	Password string `envconfig:"ORCHESTRATOR_REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"ORCHESTRATOR_REDIS_DB" default:"0"`
}

type eventsConfig struct {
	Writer  string `envconfig:"ORCHESTRATOR_EVENTS_WRITER" default:"stdout"`
	NatsURL string `envconfig:"ORCHESTRATOR_NATS_URL" default:"nats://localhost:4222"`
	Topic   string `envconfig:"ORCHESTRATOR_EVENTS_TOPIC" default:"corpus.phases.events"`
}

// PhaseProfile holds per phase overrides loaded from the phases file.
type PhaseProfile struct {
	Phase     int    `json:"phase"`
	Name      string `json:"name"`
	Stagger   string `json:"stagger,omitempty"`
	NextPhase int    `json:"nextPhase,omitempty"`

	StaggerDelay time.Duration `json:"-"`
}

type phasesFile struct {
	Phases []PhaseProfile `json:"phases"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns the configuration with every default applied, ignoring
// the environment.
func NewDefault() *Config {
	c := &Config{
		Database: &dbConfig{Type: "sqlite", Name: "file::memory:?cache=shared"},
		Service: &svcConfig{
			Address:        ":3443",
			MetricsAddress: ":8080",
			LogLevel:       "info",
			LogFormat:      "console",
			AllowedOrigins: []string{"*"},
		},
		Orchestrator: &orchestratorConfig{
			PollInterval:   10 * time.Second,
			WatcherTimeout: 30 * time.Minute,
			MaxRetries:     2,
			RetryDelay:     30 * time.Second,
			StaggerDelay:   3 * time.Second,
			ConflictWindow: 100,
			MaxCycles:      5,
			SpawnerTimeout: 15 * time.Second,
		},
		Storage: &storageConfig{
			Type:  "memory",
			Minio: minioConfig{Endpoint: "localhost:9000", Bucket: "phase-channels"},
			Redis: redisConfig{Address: "localhost:6379"},
		},
		Events: &eventsConfig{
			Writer:  "stdout",
			NatsURL: "nats://localhost:4222",
			Topic:   "corpus.phases.events",
		},
	}
	return c
}

// LoadPhases reads the phase profile file. An empty path yields no profiles.
func LoadPhases(path string) (map[int]PhaseProfile, error) {
	profiles := map[int]PhaseProfile{}
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePhases(data)
}

func ParsePhases(data []byte) (map[int]PhaseProfile, error) {
	var f phasesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	profiles := make(map[int]PhaseProfile, len(f.Phases))
	for _, p := range f.Phases {
		if p.Phase < 1 {
			return nil, fmt.Errorf("invalid phase number %d", p.Phase)
		}
		if p.Stagger != "" {
			d, err := time.ParseDuration(p.Stagger)
			if err != nil {
				return nil, fmt.Errorf("phase %d: invalid stagger %q: %w", p.Phase, p.Stagger, err)
			}
			p.StaggerDelay = d
		}
		profiles[p.Phase] = p
	}
	return profiles, nil
}
