package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Game    GameConfig    `mapstructure:"game"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI          string `mapstructure:"uri"`
	Database     string `mapstructure:"database"`
	GamesColl    string `mapstructure:"games_collection"`
	UsersColl    string `mapstructure:"users_collection"`
	PropertyColl string `mapstructure:"property_collection"`
	CardColl     string `mapstructure:"card_collection"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URI      string `mapstructure:"uri"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration int    `mapstructure:"expiration"` // in hours
}

// GameConfig holds game-specific configuration
type GameConfig struct {
	MaxPlayers            int `mapstructure:"max_players"`
	MinimumPlayersToStart int `mapstructure:"minimum_players_to_start"`
	InitialBalance        int `mapstructure:"initial_balance"`
	BoardSize             int `mapstructure:"board_size"`
	JailBribeFee          int `mapstructure:"jail_bribe_fee"`
	JailBribePosition     int `mapstructure:"jail_bribe_position"`
}

// Load reads configuration from a file or environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/boardwalk-backend")

	// Environment variables
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; we'll just use environment and defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 15)

	// MongoDB defaults
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "boardwalk")
	viper.SetDefault("mongodb.games_collection", "games")
	viper.SetDefault("mongodb.users_collection", "users")
	viper.SetDefault("mongodb.property_collection", "properties")
	viper.SetDefault("mongodb.card_collection", "cards")

	// Redis defaults
	viper.SetDefault("redis.uri", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// JWT defaults
	viper.SetDefault("jwt.secret", "replace-with-secure-secret")
	viper.SetDefault("jwt.expiration", 24)

	// Game defaults
	viper.SetDefault("game.max_players", 6)
	viper.SetDefault("game.minimum_players_to_start", 2)
	viper.SetDefault("game.initial_balance", 372000)
	viper.SetDefault("game.board_size", 32)
	viper.SetDefault("game.jail_bribe_fee", 50000)
	viper.SetDefault("game.jail_bribe_position", 8)
}
