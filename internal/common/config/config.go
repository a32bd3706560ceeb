package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Review        ReviewConfig            `mapstructure:"review"`
	Cache         CacheConfig             `mapstructure:"cache"`
	Search        SearchConfig            `mapstructure:"search"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Server        ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // single address shortcut
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the review store backend: "postgres" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// SeedFile is a JSON document of applications and reviewers loaded into
	// the memory store at startup.
	SeedFile string `mapstructure:"seed_file"`
	// Migrate applies the schema on startup when the driver is postgres.
	Migrate bool `mapstructure:"migrate"`
}

// ReviewConfig holds the defaults applied to phases without a saved config.
type ReviewConfig struct {
	DefaultCategories    []CategoryConfig `mapstructure:"default_categories"`
	MinReviewersRequired int              `mapstructure:"min_reviewers_required"`
	ReferralWeights      struct {
		Advocate float64 `mapstructure:"advocate"`
		Oppose   float64 `mapstructure:"oppose"`
	} `mapstructure:"referral_weights"`
	Normalize bool `mapstructure:"normalize"`
}

type CategoryConfig struct {
	Key       string  `mapstructure:"key"`
	Label     string  `mapstructure:"label"`
	Weight    float64 `mapstructure:"weight"`
	Mandatory bool    `mapstructure:"mandatory"`
}

type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	RankingTTL int  `mapstructure:"ranking_ttl"` // seconds
}

type SearchConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DecisionIndex string `mapstructure:"decision_index"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// NotificationConfig controls what happens after a cutoff commits.
type NotificationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AsyncTimeout int    `mapstructure:"async_timeout"` // milliseconds
	MessageName  string `mapstructure:"message_name"`
	MessageTTL   int    `mapstructure:"message_ttl"` // milliseconds
	Email        struct {
		Enabled       bool   `mapstructure:"enabled"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"email"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}
