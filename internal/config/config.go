package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/poolwatch/internal/domain"
)

type Config struct {
	Schedule           string                 `mapstructure:"schedule"`  // cron expression, e.g. "*/1 * * * *"
	MaxRetry           int                    `mapstructure:"max_retry"` // probe attempts per target per cycle
	RetryBackoff       time.Duration          `mapstructure:"retry_backoff"`
	Timeout            Timeouts               `mapstructure:"timeout"`
	InsecureSkipVerify bool                   `mapstructure:"insecure_skip_verify"` // web probes only
	DNSDiagnostics     bool                   `mapstructure:"dns_diagnostics"`
	Timezone           string                 `mapstructure:"timezone"` // timestamps in notifications
	APIPaths           map[string]string      `mapstructure:"api_paths"` // web target type -> API path suffix
	Webs               []domain.WebTarget     `mapstructure:"webs"`
	Stratums           []domain.StratumTarget `mapstructure:"stratums"`
	Remediation        Remediation            `mapstructure:"remediation"`
	Notify             Notify                 `mapstructure:"notify"`
	HTTP               HTTP                   `mapstructure:"http"`
	Log                Log                    `mapstructure:"log"`
}

type Timeouts struct {
	API     time.Duration `mapstructure:"api"`
	Stratum time.Duration `mapstructure:"stratum"`
	Restart time.Duration `mapstructure:"restart"`
}

type Remediation struct {
	Command []string `mapstructure:"command"` // remediation ID is appended as last argument
}

type Notify struct {
	SlackWebhook string `mapstructure:"slack_webhook"`
	Title        string `mapstructure:"title"`
}

type HTTP struct {
	Addr           string   `mapstructure:"addr"` // empty disables the status API
	PublicKeys     []string `mapstructure:"public_keys"`
	AdminKeys      []string `mapstructure:"admin_keys"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty allows any origin
	RPM            int      `mapstructure:"rpm"`
	Burst          int      `mapstructure:"burst"`
}

type Log struct {
	Dir    string `mapstructure:"dir"`
	Level  string `mapstructure:"level"`
	Stderr bool   `mapstructure:"stderr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schedule", "*/1 * * * *")
	v.SetDefault("max_retry", 3)
	v.SetDefault("retry_backoff", "0s")
	v.SetDefault("timeout.api", "1s")
	v.SetDefault("timeout.stratum", "1s")
	v.SetDefault("timeout.restart", "30s")
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("dns_diagnostics", false)
	v.SetDefault("timezone", "Local")
	v.SetDefault("api_paths", map[string]string{"mpos": "/index.php?page=api&action=public"})
	v.SetDefault("remediation.command", []string{"pm2", "restart"})
	v.SetDefault("notify.slack_webhook", "")
	v.SetDefault("notify.title", "poolwatch")
	v.SetDefault("http.addr", "")
	v.SetDefault("http.public_keys", []string{})
	v.SetDefault("http.admin_keys", []string{})
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.rpm", 120)
	v.SetDefault("http.burst", 20)
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stderr", false)
}

// Load reads path (or poolwatch.yaml from the usual places when path is
// empty), applies POOLWATCH_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POOLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// legacy env names
	_ = v.BindEnv("log.dir", "POOLWATCH_LOG_DIR", "LOG_DIR")
	_ = v.BindEnv("http.addr", "POOLWATCH_HTTP_ADDR", "API_ADDR")
	_ = v.BindEnv("max_retry", "POOLWATCH_MAX_RETRY", "RETRY_ATTEMPTS")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("poolwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/poolwatch")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Webs {
		w := &c.Webs[i]
		if w.ID == "" {
			w.ID = domain.TargetID(w.Name)
		}
		w.URL = strings.TrimRight(w.URL, "/")
		w.Type = strings.ToLower(w.Type)
	}
	for i := range c.Stratums {
		s := &c.Stratums[i]
		if s.ID == "" {
			s.ID = domain.TargetID(s.Name)
		}
	}
}

// Validate reports every problem at once rather than stopping at the first.
func (c Config) Validate() error {
	var err error
	if c.MaxRetry < 1 {
		err = multierr.Append(err, fmt.Errorf("max_retry must be >= 1, got %d", c.MaxRetry))
	}
	if c.RetryBackoff < 0 {
		err = multierr.Append(err, errors.New("retry_backoff must not be negative"))
	}
	if c.Timeout.API <= 0 || c.Timeout.Stratum <= 0 || c.Timeout.Restart <= 0 {
		err = multierr.Append(err, errors.New("timeout.api, timeout.stratum and timeout.restart must be positive"))
	}
	if _, perr := cron.ParseStandard(c.Schedule); perr != nil {
		err = multierr.Append(err, fmt.Errorf("schedule %q: %w", c.Schedule, perr))
	}
	if _, lerr := time.LoadLocation(c.Timezone); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("timezone %q: %w", c.Timezone, lerr))
	}
	if len(c.Remediation.Command) == 0 {
		err = multierr.Append(err, errors.New("remediation.command must not be empty"))
	}
	if len(c.Webs) == 0 && len(c.Stratums) == 0 {
		err = multierr.Append(err, errors.New("no webs or stratums configured"))
	}

	seen := make(map[domain.TargetID]bool)
	for i, w := range c.Webs {
		err = multierr.Append(err, c.validateWeb(i, w, seen))
	}
	for i, s := range c.Stratums {
		err = multierr.Append(err, validateStratum(i, s, seen))
	}
	return err
}

func (c Config) validateWeb(i int, w domain.WebTarget, seen map[domain.TargetID]bool) error {
	var err error
	where := fmt.Sprintf("webs[%d]", i)
	if w.ID == "" {
		return fmt.Errorf("%s: id or name is required", where)
	}
	if seen[w.ID] {
		err = multierr.Append(err, fmt.Errorf("%s: duplicate id %q", where, w.ID))
	}
	seen[w.ID] = true

	u, perr := url.Parse(w.URL)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("%s: url %q must be http(s)", where, w.URL))
	}
	if w.Type != "" {
		if _, ok := c.APIPaths[w.Type]; !ok {
			err = multierr.Append(err, fmt.Errorf("%s: no api_paths entry for type %q", where, w.Type))
		}
	}
	if w.Remediate && w.RemediationID == "" {
		err = multierr.Append(err, fmt.Errorf("%s: remediation_id is required when remediate is set", where))
	}
	for j, p := range w.Pools {
		if p.Coin == "" {
			err = multierr.Append(err, fmt.Errorf("%s.pools[%d]: coin is required", where, j))
		}
		if p.Threshold < 0 {
			err = multierr.Append(err, fmt.Errorf("%s.pools[%d]: threshold must not be negative", where, j))
		}
		if w.Remediate && p.RemediationID == "" {
			err = multierr.Append(err, fmt.Errorf("%s.pools[%d]: remediation_id is required when remediate is set", where, j))
		}
	}
	return err
}

func validateStratum(i int, s domain.StratumTarget, seen map[domain.TargetID]bool) error {
	var err error
	where := fmt.Sprintf("stratums[%d]", i)
	if s.ID == "" {
		return fmt.Errorf("%s: id or name is required", where)
	}
	if seen[s.ID] {
		err = multierr.Append(err, fmt.Errorf("%s: duplicate id %q", where, s.ID))
	}
	seen[s.ID] = true
	if s.Host == "" {
		err = multierr.Append(err, fmt.Errorf("%s: host is required", where))
	}
	if s.Port < 1 || s.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("%s: port %d out of range", where, s.Port))
	}
	if s.RemediationID == "" {
		err = multierr.Append(err, fmt.Errorf("%s: remediation_id is required", where))
	}
	return err
}

// APIURL is the URL probed for w.
func (c Config) APIURL(w domain.WebTarget) string {
	return w.URL + c.APIPaths[w.Type]
}

// Location falls back to UTC; Validate has already rejected unknown zones.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
