package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const Name = "xlog"
const ConfigFileName = "config.yaml"
const EnvPrefix = "XLOG_"

//go:embed config_default.yaml
var embeddedConfig []byte

type DatabaseConf struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type DeliveryConf struct {
	Workers           int           `yaml:"workers"`
	PopTimeout        time.Duration `yaml:"popTimeout"`
	VisibilityTimeout time.Duration `yaml:"visibilityTimeout"`
	HttpTimeout       time.Duration `yaml:"httpTimeout"`
	RetryInterval     time.Duration `yaml:"retryInterval"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	MaxReceives       int           `yaml:"maxReceives"`
}

type MetricsConf struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConf struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

type AppConfig struct {
	Conf struct {
		Host                string       `yaml:"host"`
		HttpPort            int          `yaml:"httpPort"`
		InstanceDomain      string       `yaml:"instanceDomain"`
		InstanceName        string       `yaml:"instanceName"`
		InstanceDescription string       `yaml:"instanceDescription"`
		OpenRegistrations   bool         `yaml:"openRegistrations"`
		WithAp              bool         `yaml:"withAp"`
		RequireSignatures   bool         `yaml:"requireSignatures"`
		AdminToken          string       `yaml:"adminToken"`
		LogLevel            string       `yaml:"logLevel"`
		LogFormat           string       `yaml:"logFormat"`
		Database            DatabaseConf `yaml:"database"`
		Delivery            DeliveryConf `yaml:"delivery"`
		Metrics             MetricsConf  `yaml:"metrics"`
		Tracing             TracingConf  `yaml:"tracing"`
	}
}

// ReadConf loads the embedded defaults, then the config file, then .env and XLOG_* overrides.
// An empty path resolves config.yaml locally first, then in the user config directory.
func ReadConf(path string) (*AppConfig, error) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}

	if path == "" {
		path = ResolveFilePath(ConfigFileName)
	}

	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// embedded defaults already applied
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// a missing .env is fine
	_ = godotenv.Load()

	if err := applyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *AppConfig) error {
	envString("HOST", &c.Conf.Host)
	envString("INSTANCE_DOMAIN", &c.Conf.InstanceDomain)
	envString("INSTANCE_NAME", &c.Conf.InstanceName)
	envString("ADMIN_TOKEN", &c.Conf.AdminToken)
	envString("LOG_LEVEL", &c.Conf.LogLevel)
	envString("LOG_FORMAT", &c.Conf.LogFormat)
	envString("DB_DRIVER", &c.Conf.Database.Driver)
	envString("DB_DSN", &c.Conf.Database.DSN)
	envBool("WITH_AP", &c.Conf.WithAp)
	envBool("REQUIRE_SIGNATURES", &c.Conf.RequireSignatures)
	envBool("METRICS_ENABLED", &c.Conf.Metrics.Enabled)
	envBool("TRACING_ENABLED", &c.Conf.Tracing.Enabled)

	if err := envInt("HTTPPORT", &c.Conf.HttpPort); err != nil {
		return err
	}
	if err := envInt("DELIVERY_WORKERS", &c.Conf.Delivery.Workers); err != nil {
		return err
	}
	if err := envInt("DELIVERY_MAX_ATTEMPTS", &c.Conf.Delivery.MaxAttempts); err != nil {
		return err
	}
	if err := envDuration("DELIVERY_HTTP_TIMEOUT", &c.Conf.Delivery.HttpTimeout); err != nil {
		return err
	}
	return envDuration("DELIVERY_RETRY_INTERVAL", &c.Conf.Delivery.RetryInterval)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
