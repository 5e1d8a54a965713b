package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

type StoreConfig struct {
	Kind    string      `mapstructure:"kind"`
	ViewDir string      `mapstructure:"view_dir"`
	Minio   MinioConfig `mapstructure:"minio"`
}

type STLConfig struct {
	ExactBounds bool `mapstructure:"exact_bounds"`
}

type CADConfig struct {
	Tessellator string        `mapstructure:"tessellator"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EncoderConfig struct {
	BufferLength int `mapstructure:"buffer_length"`
}

type ControlConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Secret       string        `mapstructure:"secret"`

	Plugins []string      `mapstructure:"plugins"`
	Store   StoreConfig   `mapstructure:"store"`
	STL     STLConfig     `mapstructure:"stl"`
	CAD     CADConfig     `mapstructure:"cad"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Control ControlConfig `mapstructure:"control"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("secret", "gprimview-dev-secret")

	v.SetDefault("plugins", []string{"cube", "stl", "csm"})
	v.SetDefault("store.kind", "local")
	v.SetDefault("store.view_dir", ".")
	v.SetDefault("store.minio.endpoint", "")
	v.SetDefault("store.minio.bucket", "")
	v.SetDefault("store.minio.prefix", "")
	v.SetDefault("store.minio.access_key", "")
	v.SetDefault("store.minio.secret_key", "")
	v.SetDefault("store.minio.use_ssl", false)
	v.SetDefault("store.minio.region", "us-east-1")
	v.SetDefault("stl.exact_bounds", false)
	v.SetDefault("cad.tessellator", "")
	v.SetDefault("cad.timeout", "60s")
	v.SetDefault("encoder.buffer_length", 65536)
	v.SetDefault("control.rate_limit", 20)
	v.SetDefault("control.rate_interval", "1s")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. Environment
// variables prefixed GPRIMVIEW_ override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile("config/config." + env + ".yaml")
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("gprimview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Kind).Strs("plugins", cfg.Plugins).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "local", "minio":
	default:
		return errors.Errorf("store.kind must be local or minio, got %q", c.Store.Kind)
	}
	if c.Store.Kind == "minio" && (c.Store.Minio.Endpoint == "" || c.Store.Minio.Bucket == "") {
		return errors.New("store.minio.endpoint and store.minio.bucket are required")
	}
	if len(c.Plugins) == 0 {
		return errors.New("plugins must list at least one plugin")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	return nil
}
