package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Outreach   OutreachConfig   `yaml:"outreach"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Slack      SlackConfig      `yaml:"slack"`
	SES        SESConfig        `yaml:"ses"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Comps      CompsConfig      `yaml:"comps"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Bulletins  BulletinsConfig  `yaml:"bulletins"`
	DealSheet  DealSheetConfig  `yaml:"deal_sheet"`
	Buyers     BuyersConfig     `yaml:"buyers"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Retention  RetentionConfig  `yaml:"retention"`
	Markets    []MarketConfig   `yaml:"markets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis connection. Empty Addr means the
// daily SMS budget falls back to counting attempts in Postgres.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig guards the /api group. Empty APIKey disables the check
// (local development only).
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// TwilioConfig holds SMS gateway credentials and throughput limits.
type TwilioConfig struct {
	AccountSID        string  `yaml:"account_sid"`
	AuthToken         string  `yaml:"auth_token"`
	FromNumber        string  `yaml:"from_number"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	StatusCallbackURL string  `yaml:"status_callback_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// OpenAIConfig holds LLM settings. Provider "none" disables LLM calls so
// message generation and classification use deterministic fallbacks.
type OpenAIConfig struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Enabled reports whether LLM calls should be made at all.
func (c OpenAIConfig) Enabled() bool {
	return c.Provider != "none" && c.Provider != "disabled" && c.APIKey != ""
}

// ScoringConfig holds motivation-score weights and stage thresholds.
type ScoringConfig struct {
	RejectThreshold  int            `yaml:"reject_threshold"`
	ContactThreshold int            `yaml:"contact_threshold"`
	HotThreshold     int            `yaml:"hot_threshold"`
	Weights          ScoringWeights `yaml:"weights"`
}

// ScoringWeights are the per-factor point values.
type ScoringWeights struct {
	Adjudicated          int `yaml:"adjudicated"`
	TaxDelinquentPerYear int `yaml:"tax_delinquent_per_year"`
	TaxDelinquentCap     int `yaml:"tax_delinquent_cap"`
	LowImprovement       int `yaml:"low_improvement"`
	AbsenteeOwner        int `yaml:"absentee_owner"`
	LotSizeIdeal         int `yaml:"lot_size_ideal"`
}

// OutreachConfig holds the dispatcher and cadence policy.
type OutreachConfig struct {
	DryRun               bool  `yaml:"dry_run"`
	CooldownDays         int   `yaml:"cooldown_days"`
	MaxSMSPerDay         int   `yaml:"max_sms_per_day"`
	BatchSize            int   `yaml:"batch_size"`
	SendLockTTLSeconds   int   `yaml:"send_lock_ttl_seconds"`
	MaxFollowups         int   `yaml:"max_followups"`
	FollowupIntervalDays []int `yaml:"followup_interval_days"`
	Workers              int   `yaml:"workers"`
	QueueSize            int   `yaml:"queue_size"`
}

// AlertsConfig holds global alerting limits; per-market sinks live in
// alert_configs rows.
type AlertsConfig struct {
	DedupHours    int `yaml:"dedup_hours"`
	RatePerMinute int `yaml:"rate_per_minute"`
}

// SlackConfig holds the bot token for the Slack alert sink.
type SlackConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// SESConfig holds credentials for the email alert sink.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
}

// EnrichmentConfig gates the external data adapters.
type EnrichmentConfig struct {
	EnableUSPS          bool   `yaml:"enable_usps"`
	USPSUserID          string `yaml:"usps_user_id"`
	EnableGoogle        bool   `yaml:"enable_google"`
	GoogleAPIKey        string `yaml:"google_api_key"`
	EnableComps         bool   `yaml:"enable_comps"`
	EnablePropstream    bool   `yaml:"enable_propstream"`
	PropstreamAPIKey    string `yaml:"propstream_api_key"`
	EnableCountyScraper bool   `yaml:"enable_county_scraper"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours"`
}

// CompsConfig holds the Snowflake warehouse holding land sales.
type CompsConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
}

// IngestConfig holds batch ingestion settings. S3 credentials are only
// needed when source paths use s3:// URLs.
type IngestConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	S3Region    string `yaml:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
}

// BulletinsConfig holds the county bulletin feed watcher settings.
type BulletinsConfig struct {
	Enabled         bool           `yaml:"enabled"`
	IntervalMinutes int            `yaml:"interval_minutes"`
	Feeds           []BulletinFeed `yaml:"feeds"`
}

// BulletinFeed is one parish bulletin RSS/Atom source.
type BulletinFeed struct {
	MarketCode string `yaml:"market_code"`
	URL        string `yaml:"url"`
}

// DealSheetConfig holds deal sheet generation settings.
type DealSheetConfig struct {
	TTLHours         int     `yaml:"ttl_hours"`
	RetailMultiplier float64 `yaml:"retail_multiplier"`
}

// BuyersConfig holds buyer matching defaults.
type BuyersConfig struct {
	MinMatchScore int `yaml:"min_match_score"`
	MaxPerBlast   int `yaml:"max_per_blast"`
}

// BreakerConfig holds circuit breaker thresholds shared by all circuits.
type BreakerConfig struct {
	FailureThreshold       int `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds"`
}

// PipelineConfig holds nightly orchestrator settings. StepTimeoutMinutes
// bounds each step so one wedged external dependency cannot outlive the
// scheduler lock.
type PipelineConfig struct {
	LockTTLMinutes     int `yaml:"lock_ttl_minutes"`
	EnrichLimit        int `yaml:"enrich_limit"`
	StepTimeoutMinutes int `yaml:"step_timeout_minutes"`
}

// RetentionConfig bounds how long derived records live. Source rows
// (parcels, parties, leads, attempts) are never swept.
type RetentionConfig struct {
	TimelineDays  int `yaml:"timeline_days"`
	TaskDays      int `yaml:"task_days"`
	SheetGrace    int `yaml:"sheet_grace_days"`
	BatchSize     int `yaml:"batch_size"`
	IntervalHours int `yaml:"interval_hours"`
}

// MarketConfig describes one market the pipeline runs for. RollSources
// are county roll locations (local paths or s3:// URLs) ingested by the
// nightly run; empty means the market only receives manual ingests.
type MarketConfig struct {
	Code                string   `yaml:"code"`
	Name                string   `yaml:"name"`
	Parishes            []string `yaml:"parishes"`
	RollSources         []string `yaml:"roll_sources"`
	MinMotivationScore  int      `yaml:"min_motivation_score"`
	Timezone            string   `yaml:"timezone"`
	OutreachWindowStart string   `yaml:"outreach_window_start"`
	OutreachWindowEnd   string   `yaml:"outreach_window_end"`
}

// Market returns the config for a market code, or nil when unknown.
func (c *Config) Market(code string) *MarketConfig {
	for i := range c.Markets {
		if strings.EqualFold(c.Markets[i].Code, code) {
			return &c.Markets[i]
		}
	}
	return nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5
	}
	if c.Twilio.MessagesPerSecond == 0 {
		c.Twilio.MessagesPerSecond = 1
	}
	if c.Twilio.TimeoutSeconds == 0 {
		c.Twilio.TimeoutSeconds = 30
	}
	if c.OpenAI.Provider == "" {
		c.OpenAI.Provider = "openai"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 30
	}
	if c.Scoring.RejectThreshold == 0 {
		c.Scoring.RejectThreshold = 30
	}
	if c.Scoring.ContactThreshold == 0 {
		c.Scoring.ContactThreshold = 45
	}
	if c.Scoring.HotThreshold == 0 {
		c.Scoring.HotThreshold = 65
	}
	if c.Scoring.Weights.Adjudicated == 0 {
		c.Scoring.Weights.Adjudicated = 40
	}
	if c.Scoring.Weights.TaxDelinquentPerYear == 0 {
		c.Scoring.Weights.TaxDelinquentPerYear = 5
	}
	if c.Scoring.Weights.TaxDelinquentCap == 0 {
		c.Scoring.Weights.TaxDelinquentCap = 20
	}
	if c.Scoring.Weights.LowImprovement == 0 {
		c.Scoring.Weights.LowImprovement = 20
	}
	if c.Scoring.Weights.AbsenteeOwner == 0 {
		c.Scoring.Weights.AbsenteeOwner = 10
	}
	if c.Scoring.Weights.LotSizeIdeal == 0 {
		c.Scoring.Weights.LotSizeIdeal = 10
	}
	if c.Outreach.CooldownDays == 0 {
		c.Outreach.CooldownDays = 7
	}
	if c.Outreach.MaxSMSPerDay == 0 {
		c.Outreach.MaxSMSPerDay = 200
	}
	if c.Outreach.BatchSize == 0 {
		c.Outreach.BatchSize = 25
	}
	if c.Outreach.SendLockTTLSeconds == 0 {
		c.Outreach.SendLockTTLSeconds = 60
	}
	if c.Outreach.MaxFollowups == 0 {
		c.Outreach.MaxFollowups = 4
	}
	if len(c.Outreach.FollowupIntervalDays) == 0 {
		c.Outreach.FollowupIntervalDays = []int{3, 7, 14, 30}
	}
	if c.Outreach.Workers == 0 {
		c.Outreach.Workers = 4
	}
	if c.Outreach.QueueSize == 0 {
		c.Outreach.QueueSize = 64
	}
	if c.Alerts.DedupHours == 0 {
		c.Alerts.DedupHours = 24
	}
	if c.Alerts.RatePerMinute == 0 {
		c.Alerts.RatePerMinute = 10
	}
	if c.Slack.BaseURL == "" {
		c.Slack.BaseURL = "https://slack.com/api/"
	}
	if c.SES.Region == "" {
		c.SES.Region = "us-east-1"
	}
	if c.Enrichment.CacheTTLHours == 0 {
		c.Enrichment.CacheTTLHours = 24
	}
	if c.Comps.Warehouse == "" {
		c.Comps.Warehouse = "COMPUTE_WH"
	}
	if c.Comps.Database == "" {
		c.Comps.Database = "LAND_COMPS"
	}
	if c.Comps.Schema == "" {
		c.Comps.Schema = "PUBLIC"
	}
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = 500
	}
	if c.Ingest.S3Region == "" {
		c.Ingest.S3Region = "us-east-1"
	}
	if c.Bulletins.IntervalMinutes == 0 {
		c.Bulletins.IntervalMinutes = 60
	}
	if c.DealSheet.TTLHours == 0 {
		c.DealSheet.TTLHours = 24
	}
	if c.DealSheet.RetailMultiplier == 0 {
		c.DealSheet.RetailMultiplier = 1.4
	}
	if c.Buyers.MinMatchScore == 0 {
		c.Buyers.MinMatchScore = 50
	}
	if c.Buyers.MaxPerBlast == 0 {
		c.Buyers.MaxPerBlast = 10
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.RecoveryTimeoutSeconds == 0 {
		c.Breaker.RecoveryTimeoutSeconds = 60
	}
	if c.Pipeline.LockTTLMinutes == 0 {
		c.Pipeline.LockTTLMinutes = 60
	}
	if c.Pipeline.EnrichLimit == 0 {
		c.Pipeline.EnrichLimit = 100
	}
	if c.Pipeline.StepTimeoutMinutes == 0 {
		c.Pipeline.StepTimeoutMinutes = 15
	}
	if c.Retention.TimelineDays == 0 {
		c.Retention.TimelineDays = 180
	}
	if c.Retention.TaskDays == 0 {
		c.Retention.TaskDays = 90
	}
	if c.Retention.SheetGrace == 0 {
		c.Retention.SheetGrace = 7
	}
	if c.Retention.BatchSize == 0 {
		c.Retention.BatchSize = 5000
	}
	if c.Retention.IntervalHours == 0 {
		c.Retention.IntervalHours = 24
	}
	if len(c.Markets) == 0 {
		c.Markets = []MarketConfig{{
			Code:               "LA",
			Name:               "Louisiana",
			MinMotivationScore: c.Scoring.ContactThreshold,
		}}
	}
	for i := range c.Markets {
		if c.Markets[i].Timezone == "" {
			c.Markets[i].Timezone = "America/Chicago"
		}
		if c.Markets[i].MinMotivationScore == 0 {
			c.Markets[i].MinMotivationScore = c.Scoring.ContactThreshold
		}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		// Config file is optional when the environment carries everything.
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
		cfg.applyDefaults()
	}

	// Database override (critical in deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = envInt(v, cfg.Server.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}

	// Outreach policy
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Outreach.DryRun = envBool(v)
	}
	if v := os.Getenv("OUTREACH_COOLDOWN_DAYS"); v != "" {
		cfg.Outreach.CooldownDays = envInt(v, cfg.Outreach.CooldownDays)
	}
	if v := os.Getenv("MAX_SMS_PER_DAY"); v != "" {
		cfg.Outreach.MaxSMSPerDay = envInt(v, cfg.Outreach.MaxSMSPerDay)
	}
	if v := os.Getenv("SMS_BATCH_SIZE"); v != "" {
		cfg.Outreach.BatchSize = envInt(v, cfg.Outreach.BatchSize)
	}
	if v := os.Getenv("MAX_FOLLOWUPS"); v != "" {
		cfg.Outreach.MaxFollowups = envInt(v, cfg.Outreach.MaxFollowups)
	}

	// Scoring thresholds
	if v := os.Getenv("MIN_MOTIVATION_SCORE"); v != "" {
		cfg.Scoring.ContactThreshold = envInt(v, cfg.Scoring.ContactThreshold)
	}
	if v := os.Getenv("HOT_SCORE_THRESHOLD"); v != "" {
		cfg.Scoring.HotThreshold = envInt(v, cfg.Scoring.HotThreshold)
	}
	if v := os.Getenv("REJECT_SCORE_THRESHOLD"); v != "" {
		cfg.Scoring.RejectThreshold = envInt(v, cfg.Scoring.RejectThreshold)
	}

	// Twilio
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}
	if v := os.Getenv("TWILIO_MAX_MESSAGES_PER_SECOND"); v != "" {
		cfg.Twilio.MessagesPerSecond = envFloat(v, cfg.Twilio.MessagesPerSecond)
	}
	if v := os.Getenv("TWILIO_STATUS_CALLBACK_URL"); v != "" {
		cfg.Twilio.StatusCallbackURL = v
	}

	// LLM
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.OpenAI.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}

	// Feature flags
	if v := os.Getenv("ENABLE_USPS"); v != "" {
		cfg.Enrichment.EnableUSPS = envBool(v)
	}
	if v := os.Getenv("ENABLE_GOOGLE"); v != "" {
		cfg.Enrichment.EnableGoogle = envBool(v)
	}
	if v := os.Getenv("ENABLE_COMPS"); v != "" {
		cfg.Enrichment.EnableComps = envBool(v)
	}
	if v := os.Getenv("ENABLE_PROPSTREAM"); v != "" {
		cfg.Enrichment.EnablePropstream = envBool(v)
	}
	if v := os.Getenv("ENABLE_COUNTY_SCRAPER"); v != "" {
		cfg.Enrichment.EnableCountyScraper = envBool(v)
	}
	if v := os.Getenv("USPS_USER_ID"); v != "" {
		cfg.Enrichment.USPSUserID = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		cfg.Enrichment.GoogleAPIKey = v
	}

	// Alerts
	if v := os.Getenv("ALERT_DEDUP_HOURS"); v != "" {
		cfg.Alerts.DedupHours = envInt(v, cfg.Alerts.DedupHours)
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.Token = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("ALERT_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}

	// Comps warehouse
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Comps.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Comps.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Comps.Password = v
	}

	// Ingest S3 source
	if v := os.Getenv("INGEST_S3_REGION"); v != "" {
		cfg.Ingest.S3Region = v
	}
	if v := os.Getenv("INGEST_S3_ACCESS_KEY"); v != "" {
		cfg.Ingest.S3AccessKey = v
	}
	if v := os.Getenv("INGEST_S3_SECRET_KEY"); v != "" {
		cfg.Ingest.S3SecretKey = v
	}

	return cfg, nil
}

// Validate checks the settings a process cannot run without. The nightly
// scheduler exits 1 when this fails.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	if c.Scoring.RejectThreshold >= c.Scoring.ContactThreshold {
		return fmt.Errorf("reject threshold %d must be below contact threshold %d",
			c.Scoring.RejectThreshold, c.Scoring.ContactThreshold)
	}
	if c.Scoring.ContactThreshold >= c.Scoring.HotThreshold {
		return fmt.Errorf("contact threshold %d must be below hot threshold %d",
			c.Scoring.ContactThreshold, c.Scoring.HotThreshold)
	}
	if c.Outreach.BatchSize < 1 {
		return fmt.Errorf("sms batch size must be positive")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market must be configured")
	}
	if !c.Outreach.DryRun && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "") {
		return fmt.Errorf("twilio credentials are required outside dry-run")
	}
	return nil
}

func envInt(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
