package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Env        string  `yaml:"env" env:"ENV" env-default:"prod"`
	Storage    Storage `yaml:"storage"`
	HTTPServer `yaml:"http_server"`
	CORS       CORS    `yaml:"cors"`
	Pricing    Pricing `yaml:"pricing"`

	AdminLogin string `yaml:"admin_login" env:"ADMIN_LOGIN"`
	AdminPass  string `yaml:"admin_pass" env:"ADMIN_PASS"`
}

type Storage struct {
	// Driver is mysql or sqlite. A MySQL DSN must carry parseTime=true.
	Driver  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mysql"`
	DSN     string `yaml:"dsn" env:"STORAGE_DSN" env-required:"true"`
	Migrate bool   `yaml:"migrate" env:"STORAGE_MIGRATE"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:4001"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:5173"`
}

// Pricing holds the defaults applied when a request does not override them.
type Pricing struct {
	Currency             string  `yaml:"currency" env-default:"RUB"`
	TaxPercent           float64 `yaml:"tax_percent" env-default:"20"`
	DefaultMarginPercent float64 `yaml:"default_margin_percent" env-default:"25"`
}

const defaultPath = "./config/local.yaml"

// MustConfig reads the file given by --config, then CONFIG_PATH, then the
// local default. Environment variables override the file.
func MustConfig() *Config {
	var flagPath string
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	fs.StringVarP(&flagPath, "config", "c", "", "path to the YAML config file")
	_ = fs.Parse(os.Args[1:])

	cfg, err := Load(resolvePath(flagPath))
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return cfg
}

func resolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultPath
}

func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
