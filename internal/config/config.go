package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the synchronizer
type Config struct {
	LogLevel string        `yaml:"log_level"`
	AWS      AWSConfig     `yaml:"aws"`
	Accounts []Account     `yaml:"accounts"`
	Ingest   IngestConfig  `yaml:"ingest"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Jira     JiraConfig    `yaml:"jira"`
	Trigger  TriggerConfig `yaml:"trigger"`
	Lock     LockConfig    `yaml:"lock"`
	Server   ServerConfig  `yaml:"server"`
}

// AWSConfig holds the central account settings used for the ledger and
// trigger clients. Support API calls always go to SupportRegion.
type AWSConfig struct {
	Region        string `yaml:"region"`
	AccountID     string `yaml:"account_id"`
	Profile       string `yaml:"profile"` // Empty string uses default credential chain
	SupportRegion string `yaml:"support_region"`
}

// GetProfile returns the AWS profile, ignoring it when running on Lambda/ECS.
func (c AWSConfig) GetProfile() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// Account is one member account whose support cases are mirrored. ARN is
// the role assumed to reach the account's Support API.
type Account struct {
	Name string `yaml:"name"`
	ARN  string `yaml:"arn"`
}

// IngestConfig controls case ingestion
type IngestConfig struct {
	LookbackDays          int `yaml:"lookback_days"`
	Concurrency           int `yaml:"concurrency"`
	CasePageSize          int `yaml:"case_page_size"`
	CommunicationPageSize int `yaml:"communication_page_size"`
}

// Lookback returns the look-back window as a duration
func (c IngestConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// LedgerConfig selects and configures the communication ledger
type LedgerConfig struct {
	Type        string `yaml:"type"` // "dynamodb", "postgres" or "memory"
	Table       string `yaml:"table"`
	Index       string `yaml:"index"`
	DatabaseURL string `yaml:"database_url"`
}

// JiraField names one custom field used as a case reference. Name is used
// in JQL, ID is the key under issue.fields in search results.
type JiraField struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// JiraConfig holds Jira REST API configuration
type JiraConfig struct {
	APIHost            string    `yaml:"api_host"` // e.g. https://jira.example.com/rest/api/2
	APIKey             string    `yaml:"api_key"`  // pre-encoded basic auth credential
	InsecureSkipVerify bool      `yaml:"insecure_skip_verify"`
	TimeoutSeconds     int       `yaml:"timeout_seconds"`
	MaxRetries         int       `yaml:"max_retries"`
	Field1             JiraField `yaml:"field1"`
	Field2             JiraField `yaml:"field2"`
}

// Timeout returns the configured timeout as a duration
func (c JiraConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TriggerConfig selects how the ingestion completion event is delivered
type TriggerConfig struct {
	Type     string   `yaml:"type"` // "sqs", "sns", "kafka" or "local"
	QueueURL string   `yaml:"queue_url"`
	TopicARN string   `yaml:"topic_arn"`
	Topic    string   `yaml:"topic"` // SNS topic name when topic_arn is empty, Kafka topic otherwise
	Brokers  []string `yaml:"brokers"`
	GroupID  string   `yaml:"group_id"` // Kafka consumer group for listen
}

// SNSTargetARN returns the configured ARN or builds one from region,
// account id and topic name.
func (c *Config) SNSTargetARN() string {
	if c.Trigger.TopicARN != "" {
		return c.Trigger.TopicARN
	}
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", c.AWS.Region, c.AWS.AccountID, c.Trigger.Topic)
}

// LockConfig configures the propagation run lock. Without a redis URL the
// lock falls back to a Postgres advisory lock when the ledger is Postgres,
// and is disabled otherwise.
type LockConfig struct {
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the lock TTL as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ServerConfig holds HTTP trigger receiver configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, listening on all interfaces inside containers
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "eu-west-1"
	}
	if cfg.AWS.SupportRegion == "" {
		cfg.AWS.SupportRegion = "us-east-1"
	}
	if cfg.Ingest.LookbackDays == 0 {
		cfg.Ingest.LookbackDays = 7
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.CasePageSize == 0 {
		cfg.Ingest.CasePageSize = 50
	}
	if cfg.Ingest.CommunicationPageSize == 0 {
		cfg.Ingest.CommunicationPageSize = 100
	}
	if cfg.Ledger.Type == "" {
		cfg.Ledger.Type = "dynamodb"
	}
	if cfg.Ledger.Table == "" {
		cfg.Ledger.Table = "SupportCommunications"
	}
	if cfg.Ledger.Index == "" {
		cfg.Ledger.Index = "JiraUpdated-timeCreated-index"
	}
	if cfg.Jira.TimeoutSeconds == 0 {
		cfg.Jira.TimeoutSeconds = 30
	}
	if cfg.Jira.MaxRetries == 0 {
		cfg.Jira.MaxRetries = 3
	}
	if cfg.Trigger.Type == "" {
		cfg.Trigger.Type = "local"
	}
	if cfg.Trigger.GroupID == "" {
		cfg.Trigger.GroupID = "supportsync"
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 900
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first when present so secrets can live there
// locally and in real env vars on Lambda/ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCOUNT_ID"); v != "" {
		cfg.AWS.AccountID = v
	}
	if v := os.Getenv("JIRA_API_HOST"); v != "" {
		cfg.Jira.APIHost = v
	}
	if v := os.Getenv("JIRA_API_KEY"); v != "" {
		cfg.Jira.APIKey = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Ledger.Table = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Ledger.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("TRIGGER_QUEUE_URL"); v != "" {
		cfg.Trigger.QueueURL = v
	}
	if v := os.Getenv("TRIGGER_TOPIC_ARN"); v != "" {
		cfg.Trigger.TopicARN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Trigger.Brokers = strings.Split(v, ",")
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("accounts: at least one account is required"))
	}
	for i, a := range c.Accounts {
		if a.ARN == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: arn is required", i))
		}
	}
	if c.Jira.APIHost == "" {
		errs = append(errs, errors.New("jira.api_host is required"))
	}
	if c.Jira.Field1.Name == "" || c.Jira.Field2.Name == "" {
		errs = append(errs, errors.New("jira.field1 and jira.field2 names are required"))
	}
	if c.Jira.Field2.ID == "" {
		errs = append(errs, errors.New("jira.field2.id is required"))
	}

	switch c.Ledger.Type {
	case "dynamodb", "memory":
	case "postgres":
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("ledger.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.type %q is not supported", c.Ledger.Type))
	}

	switch c.Trigger.Type {
	case "local":
	case "sqs":
		if c.Trigger.QueueURL == "" {
			errs = append(errs, errors.New("trigger.queue_url is required for sqs"))
		}
	case "sns":
		if c.Trigger.TopicARN == "" && (c.Trigger.Topic == "" || c.AWS.AccountID == "") {
			errs = append(errs, errors.New("trigger.topic_arn or trigger.topic with aws.account_id is required for sns"))
		}
	case "kafka":
		if len(c.Trigger.Brokers) == 0 || c.Trigger.Topic == "" {
			errs = append(errs, errors.New("trigger.brokers and trigger.topic are required for kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("trigger.type %q is not supported", c.Trigger.Type))
	}

	return errors.Join(errs...)
}
