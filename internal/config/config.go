package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Reddit      RedditConfig      `mapstructure:"reddit"`
	Anonymous   AnonymousConfig   `mapstructure:"anonymous"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Harvest     HarvestConfig     `mapstructure:"harvest"`
	Filter      FilterConfig      `mapstructure:"filter"`
	Communities CommunitiesConfig `mapstructure:"communities"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the gorm dialect. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds a postgres connection string from the discrete fields.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// SinkConfig selects where harvested corpora are persisted: "sql", "mongo" or "none".
type SinkConfig struct {
	Driver        string        `mapstructure:"driver"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type RedditConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	UserAgent    string        `mapstructure:"user_agent"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// HasCredentials reports whether the authenticated adapter can be built.
func (c RedditConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type AnonymousConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	RequestPeriod time.Duration `mapstructure:"request_period"`
}

type FeedConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	RequestPeriod time.Duration `mapstructure:"request_period"`
}

type HarvestConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	InterBatchDelay  time.Duration `mapstructure:"inter_batch_delay"`
	AdapterTimeout   time.Duration `mapstructure:"adapter_timeout"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxCommentDepth  int           `mapstructure:"max_comment_depth"`
	CommentPosts     int           `mapstructure:"comment_posts"`
	CommentsPerPost  int           `mapstructure:"comments_per_post"`
	DefaultPostLimit int           `mapstructure:"default_post_limit"`
	DefaultTimeRange string        `mapstructure:"default_time_range"`
	DefaultSortMode  string        `mapstructure:"default_sort_mode"`
}

type FilterConfig struct {
	MinLength   int      `mapstructure:"min_length"`
	BotAccounts []string `mapstructure:"bot_accounts"`
}

// CommunitiesConfig holds the default lists used when a request names none.
type CommunitiesConfig struct {
	Fast []string `mapstructure:"fast"`
	Full []string `mapstructure:"full"`
}

// Defaults returns the list matching the fast-mode flag.
func (c CommunitiesConfig) Defaults(fast bool) []string {
	if fast {
		return append([]string(nil), c.Fast...)
	}
	return append([]string(nil), c.Full...)
}

type ClassifierConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are bound explicitly
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("sink.mongo_uri", "MONGO_URI")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("reddit.client_id", "REDDIT_CLIENT_ID")
	v.BindEnv("reddit.client_secret", "REDDIT_CLIENT_SECRET")
	v.BindEnv("reddit.username", "REDDIT_USERNAME")
	v.BindEnv("reddit.password", "REDDIT_PASSWORD")
	v.BindEnv("reddit.user_agent", "REDDIT_USER_AGENT")
	v.BindEnv("classifier.base_url", "CLASSIFIER_BASE_URL")
	v.BindEnv("classifier.api_key", "CLASSIFIER_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sentiscope.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sentiscope")
	v.SetDefault("database.dbname", "sentiscope")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("sink.driver", "sql")
	v.SetDefault("sink.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("sink.mongo_database", "sentiscope")
	v.SetDefault("sink.timeout", 15*time.Second)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "sentiscope")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "harvests")

	v.SetDefault("reddit.enabled", true)
	v.SetDefault("reddit.user_agent", "sentiscope/1.0")
	v.SetDefault("reddit.token_ttl", 50*time.Minute)

	v.SetDefault("anonymous.enabled", true)
	v.SetDefault("anonymous.base_url", "https://www.reddit.com")
	v.SetDefault("anonymous.user_agent", "sentiscope/1.0")
	v.SetDefault("anonymous.request_period", 1*time.Second)

	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.base_url", "https://www.reddit.com")
	v.SetDefault("feed.user_agent", "sentiscope/1.0")

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.base_url", "https://arctic-shift.photon-reddit.com")
	v.SetDefault("archive.request_period", 500*time.Millisecond)

	v.SetDefault("harvest.batch_size", 3)
	v.SetDefault("harvest.inter_batch_delay", time.Second)
	v.SetDefault("harvest.adapter_timeout", 10*time.Second)
	v.SetDefault("harvest.retry_delay", 3*time.Second)
	v.SetDefault("harvest.max_comment_depth", 10)
	v.SetDefault("harvest.comment_posts", 5)
	v.SetDefault("harvest.comments_per_post", 50)
	v.SetDefault("harvest.default_post_limit", 25)
	v.SetDefault("harvest.default_time_range", "week")
	v.SetDefault("harvest.default_sort_mode", "top")

	v.SetDefault("filter.min_length", 10)
	v.SetDefault("filter.bot_accounts", []string{"AutoModerator"})

	v.SetDefault("communities.fast", []string{
		"AskReddit", "worldnews", "technology", "science", "personalfinance",
		"mentalhealth", "Anxiety", "depression", "jobs", "careerguidance",
		"productivity", "selfimprovement", "programming", "cscareerquestions",
		"AskScience", "Futurology",
	})
	v.SetDefault("communities.full", []string{
		"AskReddit", "worldnews", "technology", "science", "personalfinance",
		"mentalhealth", "Anxiety", "depression", "jobs", "careerguidance",
		"productivity", "selfimprovement", "programming", "cscareerquestions",
		"AskScience", "Futurology", "news", "politics", "economics", "investing",
		"Entrepreneur", "smallbusiness", "startups", "education", "Teachers",
		"college", "GradSchool", "AcademicPsychology", "psychology", "socialwork",
		"nursing", "medicine", "Health", "Fitness", "nutrition", "sleep",
		"ADHD", "socialanxiety", "lonely", "offmychest",
	})

	v.SetDefault("classifier.timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks cross-field constraints after unmarshalling.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}
	switch c.Sink.Driver {
	case "sql", "mongo", "none":
	default:
		return fmt.Errorf("sink: unsupported driver %q", c.Sink.Driver)
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest: batch_size must be positive")
	}
	if c.Harvest.AdapterTimeout <= 0 {
		return fmt.Errorf("harvest: adapter_timeout must be positive")
	}
	if c.Filter.MinLength < 0 {
		return fmt.Errorf("filter: min_length must not be negative")
	}
	return nil
}
