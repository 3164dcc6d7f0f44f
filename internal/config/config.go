package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/jdelaire/openwa/internal/keychain"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Config is the runtime configuration of the webhook server. Values come
// from an optional YAML file, then environment variables, then the OS
// keychain for secrets left empty by both.
type Config struct {
	Env         string `yaml:"env" env:"OPENWA_ENV" env-default:"prod" env-description:"dev or prod"`
	Port        int    `yaml:"port" env:"PORT" env-default:"5000" env-description:"HTTP listen port"`
	WebhookPath string `yaml:"webhook_path" env:"WEBHOOK_PATH" env-default:"/webhook" env-description:"webhook URL path"`

	WhatsApp WhatsApp `yaml:"whatsapp"`
	Dispatch Dispatch `yaml:"dispatch"`
	Policy   Policy   `yaml:"policy"`
	Bot      Bot      `yaml:"bot"`
}

// WhatsApp holds the Cloud API credentials and endpoint.
type WhatsApp struct {
	AccessToken   string `yaml:"access_token" env:"WHATSAPP_TOKEN" env-description:"Cloud API access token"`
	PhoneNumberID string `yaml:"phone_number_id" env:"PHONE_NUMBER_ID" env-description:"business phone number id"`
	VerifyToken   string `yaml:"verify_token" env:"VERIFY_TOKEN" env-description:"webhook subscription verify token"`
	AppSecret     string `yaml:"app_secret" env:"WHATSAPP_APP_SECRET" env-description:"app secret for payload signatures"`
	APIVersion    string `yaml:"api_version" env:"OPENWA_API_VERSION" env-default:"v19.0"`
	BaseURL       string `yaml:"base_url" env:"OPENWA_BASE_URL" env-default:"https://graph.facebook.com"`
}

// Dispatch tunes how callbacks run.
type Dispatch struct {
	// Sync runs callbacks inside the webhook request instead of in the
	// background.
	Sync            bool          `yaml:"sync" env:"OPENWA_SYNC"`
	MaxConcurrent   int           `yaml:"max_concurrent" env:"OPENWA_MAX_CONCURRENT" env-default:"16" env-description:"background callback limit, 0 for the default, negative for none"`
	CallbackTimeout time.Duration `yaml:"callback_timeout" env:"OPENWA_CALLBACK_TIMEOUT" env-default:"30s"`
}

// Policy filters inbound messages before dispatch.
type Policy struct {
	AllowFrom       []string      `yaml:"allow_from" env:"OPENWA_ALLOW_FROM" env-separator:"," env-description:"allowed sender wa_ids, empty for all"`
	FreshnessWindow time.Duration `yaml:"freshness_window" env:"OPENWA_FRESHNESS_WINDOW"`
	RedisURL        string        `yaml:"redis_url" env:"OPENWA_REDIS_URL" env-description:"shared dedup store, in-memory when empty"`
	DedupTTL        time.Duration `yaml:"dedup_ttl" env:"OPENWA_DEDUP_TTL" env-default:"24h"`
}

// Bot holds the settings of the reference echo bot.
type Bot struct {
	DownloadDir string `yaml:"download_dir" env:"OPENWA_DOWNLOAD_DIR" env-description:"where /download stores media, a temp dir when empty"`
	FlowID      string `yaml:"flow_id" env:"OPENWA_FLOW_ID" env-description:"WhatsApp Flow opened by /flow"`
	FlowScreen  string `yaml:"flow_screen" env:"OPENWA_FLOW_SCREEN" env-description:"first screen of that Flow"`
}

// Load reads the configuration. path may be empty to read the environment
// only.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAllowlist re-reads only the sender allowlist from path.
func LoadAllowlist(path string) ([]string, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	return cfg.Policy.AllowFrom, nil
}

func read(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.Policy.AllowFrom = cleanList(cfg.Policy.AllowFrom)
	return &cfg, nil
}

func resolveSecrets(cfg *Config) error {
	secrets := []struct {
		value   *string
		account string
	}{
		{&cfg.WhatsApp.AccessToken, keychain.AccessToken},
		{&cfg.WhatsApp.VerifyToken, keychain.VerifyToken},
		{&cfg.WhatsApp.AppSecret, keychain.AppSecret},
	}
	for _, s := range secrets {
		v, err := keychain.Resolve(*s.value, s.account)
		if err != nil {
			return err
		}
		*s.value = v
	}
	return nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.WhatsApp.AccessToken == "" {
		errs = append(errs, errors.New("access token missing: set WHATSAPP_TOKEN or the keychain entry"))
	}
	if c.WhatsApp.PhoneNumberID == "" {
		errs = append(errs, errors.New("PHONE_NUMBER_ID missing"))
	}
	if c.WhatsApp.VerifyToken == "" {
		errs = append(errs, errors.New("verify token missing: set VERIFY_TOKEN or the keychain entry"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("webhook path %q must start with /", c.WebhookPath))
	}
	if c.Env != EnvDev && c.Env != EnvProd {
		errs = append(errs, fmt.Errorf("env %q must be %s or %s", c.Env, EnvDev, EnvProd))
	}
	if c.Dispatch.CallbackTimeout < 0 {
		errs = append(errs, errors.New("callback timeout must not be negative"))
	}
	if c.Policy.FreshnessWindow < 0 {
		errs = append(errs, errors.New("freshness window must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Usage describes every environment variable the config reads.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}

func cleanList(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
