package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// MongoDB holds attachment blobs (GridFS)
	MongoDB MongoDBConfig `json:"mongodb"`

	// Discord gateway Configuration
	Discord DiscordConfig `json:"discord"`

	// Relay engine behaviour
	Relay RelayConfig `json:"relay"`

	// Auth for the transcript/events HTTP API
	Auth AuthConfig `json:"auth"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
	MediaBaseURL string `json:"media_base_url"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Driver       string `json:"driver"` // mysql, sqlite
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	SQLitePath   string `json:"sqlite_path"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type MongoDBConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

// DiscordConfig contains the bot credentials and the staff guild it serves
type DiscordConfig struct {
	Token         string   `json:"-"`
	GuildID       string   `json:"guild_id"`
	CategoryID    string   `json:"category_id"`
	StaffRoleIDs  []string `json:"staff_role_ids"`
	CommandPrefix string   `json:"command_prefix"`
}

// RelayConfig tunes how messages are relayed and how lifecycle notices behave
type RelayConfig struct {
	Timestamps          bool          `json:"timestamps"`
	UseNicknames        bool          `json:"use_nicknames"`
	InlineAttachmentMax uint64        `json:"inline_attachment_max"` // bytes
	CloseGuardWindow    time.Duration `json:"close_guard_window"`
	NoticeTTL           time.Duration `json:"notice_ttl"`
	SendTimeout         time.Duration `json:"send_timeout"`
	SweepInterval       time.Duration `json:"sweep_interval"`
	EventWorkers        int           `json:"event_workers"`
	EventBufferSize     int           `json:"event_buffer_size"`
}

type AuthConfig struct {
	JWTSecret string        `json:"-"`
	TokenTTL  time.Duration `json:"token_ttl"`
	RPS       float64       `json:"rps"`
	Burst     int           `json:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "mysql"),
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "modmail"),
			Password:     getEnv("MYSQL_PASSWORD", "modmail123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "modmail"),
			SQLitePath:   getEnv("SQLITE_PATH", "modmail.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoDBConfig{
			Host:     getEnv("MONGO_HOST", "localhost"),
			Port:     getEnv("MONGO_PORT", "27017"),
			Username: getEnv("MONGO_USERNAME", ""),
			Password: getEnv("MONGO_PASSWORD", ""),
			Database: getEnv("MONGO_DATABASE", "modmail"),
			Enabled:  getEnvAsBool("MONGO_ENABLED", false),
		},
		Discord: DiscordConfig{
			Token:         getEnv("DISCORD_TOKEN", ""),
			GuildID:       getEnv("DISCORD_GUILD_ID", ""),
			CategoryID:    getEnv("DISCORD_CATEGORY_ID", ""),
			StaffRoleIDs:  getEnvAsList("DISCORD_STAFF_ROLE_IDS"),
			CommandPrefix: getEnv("COMMAND_PREFIX", "!"),
		},
		Relay: RelayConfig{
			Timestamps:          getEnvAsBool("RELAY_TIMESTAMPS", true),
			UseNicknames:        getEnvAsBool("RELAY_USE_NICKNAMES", true),
			InlineAttachmentMax: getEnvAsBytes("RELAY_INLINE_ATTACHMENT_MAX", 8*humanize.MiByte),
			CloseGuardWindow:    getEnvAsDuration("RELAY_CLOSE_GUARD_WINDOW", 30*time.Second),
			NoticeTTL:           getEnvAsDuration("RELAY_NOTICE_TTL", 30*time.Second),
			SendTimeout:         getEnvAsDuration("RELAY_SEND_TIMEOUT", 10*time.Second),
			SweepInterval:       getEnvAsDuration("RELAY_SWEEP_INTERVAL", 15*time.Second),
			EventWorkers:        getEnvAsInt("EVENT_WORKERS", 4),
			EventBufferSize:     getEnvAsInt("EVENT_BUFFER_SIZE", 1000),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
			RPS:       getEnvAsFloat("API_RPS", 20),
			Burst:     getEnvAsInt("API_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	cfg.Server.MediaBaseURL = getEnv("MEDIA_BASE_URL",
		fmt.Sprintf("http://localhost:%s/media/", cfg.Server.Port))

	return cfg
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.Username != "" && cfg.MongoDB.Password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
			cfg.MongoDB.Username,
			cfg.MongoDB.Password,
			cfg.MongoDB.Host,
			cfg.MongoDB.Port,
			cfg.MongoDB.Database,
		)
	}
	return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
}

// IsStaffRole reports whether roleID is one of the configured staff roles.
// With no roles configured every role counts.
func (cfg *Config) IsStaffRole(roleID string) bool {
	if len(cfg.Discord.StaffRoleIDs) == 0 {
		return true
	}
	for _, id := range cfg.Discord.StaffRoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBytes accepts humanized sizes such as "8MiB" or "500 kB".
func getEnvAsBytes(key string, defaultValue uint64) uint64 {
	if value, err := humanize.ParseBytes(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
