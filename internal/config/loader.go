package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/db"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the process configuration.
type Config struct {
	Server   ServerConfig
	Storage  string
	Database db.Config
	SQLite   string

	// ModelsDir overrides the embedded model definitions when set.
	ModelsDir string
	SeedDir   string

	// CustomFields defines the custom fields of the memory store.
	CustomFields customfield.StaticSource

	MaxAliases int
	Debug      bool
}

type customFieldConfig struct {
	Name        string   `mapstructure:"name"`
	Label       string   `mapstructure:"label"`
	Type        string   `mapstructure:"type"`
	ObjectTypes []string `mapstructure:"object_types"`
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// Load reads config.yaml from configPath if present, then applies NETGQL_
// environment overrides such as NETGQL_DATABASE_HOST.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("NETGQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Println("[CONFIG] no config.yaml found, using defaults and env vars")
	} else {
		log.Printf("[CONFIG] loaded %s", v.ConfigFileUsed())
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
		Storage: strings.ToLower(v.GetString("storage.driver")),
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		SQLite:     v.GetString("sqlite.path"),
		ModelsDir:  v.GetString("models.dir"),
		SeedDir:    v.GetString("memory.seed_dir"),
		MaxAliases: v.GetInt("graphql.max_aliases"),
		Debug:      v.GetBool("logging.debug"),
	}

	var fields []customFieldConfig
	if err := v.UnmarshalKey("memory.custom_fields", &fields); err != nil {
		return Config{}, fmt.Errorf("failed to decode memory.custom_fields: %w", err)
	}
	for _, f := range fields {
		cfg.CustomFields = append(cfg.CustomFields, customfield.Field{
			Name:        f.Name,
			Label:       f.Label,
			Type:        customfield.Type(f.Type),
			ObjectTypes: f.ObjectTypes,
		})
	}

	switch cfg.Storage {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
	if cfg.MaxAliases < 1 {
		return Config{}, fmt.Errorf("graphql.max_aliases must be positive, got %d", cfg.MaxAliases)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("sqlite.path", "netgql.db")
	v.SetDefault("models.dir", "")
	v.SetDefault("memory.seed_dir", "")
	v.SetDefault("graphql.max_aliases", 10)
	v.SetDefault("logging.debug", false)
}
