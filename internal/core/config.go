package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port on which the world server will listen.
	Port int `mapstructure:"port"`
	// Maximum number of concurrent players the server will allow.
	MaxPlayers int `mapstructure:"max_players"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Engine selects the storage backend. Options: sqlite (default), postgres.
		Engine string `mapstructure:"engine"`
		// Path to the sqlite database file (sqlite engine only).
		Filename string `mapstructure:"filename"`
		// Connection parameters for the postgres engine.
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Game struct {
		// How often connected clients are checked for liveness.
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
		// How long shutdown waits for clients to save and leave before
		// the process exits anyway.
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// How often site rewards are evaluated and broadcast.
		SiteRewardInterval time.Duration `mapstructure:"site_reward_interval"`
		// How long a player stays locked in their safe zone if the client
		// never acknowledges event resolution.
		SafeZoneTimeout time.Duration `mapstructure:"safe_zone_timeout"`
		// How long a faction invite remains valid.
		InviteTimeout time.Duration `mapstructure:"invite_timeout"`
		// Chat messages allowed per second per player.
		ChatMessagesPerSecond float64 `mapstructure:"chat_messages_per_second"`
		// Path to the whitelist file. Blank disables the whitelist.
		WhitelistFile string `mapstructure:"whitelist_file"`
	} `mapstructure:"game"`

	Mods struct {
		Required  []string `mapstructure:"required"`
		Optional  []string `mapstructure:"optional"`
		Forbidden []string `mapstructure:"forbidden"`
	} `mapstructure:"mods"`

	AdminAPI struct {
		// Enables the operator HTTP API.
		Enabled bool `mapstructure:"enabled"`
		// Port on which the operator API will listen.
		Port int `mapstructure:"port"`
		// Bearer token required on every operator API request.
		Token string `mapstructure:"token"`
	} `mapstructure:"admin_api"`

	Debugging struct {
		// Dump decoded packets to the log.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "CAIRNWAY"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, viper.ConfigFileNotFoundError{}) {
			fmt.Printf("error reading config file: no config file in path %s", configPath)
		} else {
			fmt.Printf("error reading config file: %v", err)
		}
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := DefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v", err)
		os.Exit(1)
	}
	return config
}

// DefaultConfig returns a Config with the baseline values every deployment
// shares. LoadConfig overlays the config file and environment on top of it.
func DefaultConfig() *Config {
	config := &Config{
		Hostname:   "0.0.0.0",
		Port:       25555,
		MaxPlayers: 100,
	}
	config.Logging.LogLevel = "info"
	config.Database.Engine = "sqlite"
	config.Database.Filename = "cairnway.db"
	config.Game.SweepInterval = 100 * time.Millisecond
	config.Game.ShutdownTimeout = 30 * time.Second
	config.Game.SiteRewardInterval = 30 * time.Minute
	config.Game.SafeZoneTimeout = 10 * time.Minute
	config.Game.InviteTimeout = 5 * time.Minute
	config.Game.ChatMessagesPerSecond = 2
	return config
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a postgres connection string generated from the
// provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ListenAddress returns the address on which the world server listens.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}
