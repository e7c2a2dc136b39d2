package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/utils"
)

type ServerConfig struct {
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

type StoreConfig struct {
	// Backend is one of memory, file, redis, postgres.
	Backend       string `yaml:"backend"`
	FilePath      string `yaml:"filePath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	PostgresDSN   string `yaml:"postgresDsn"`
}

type ModelsConfig struct {
	Pro   string `yaml:"pro"`
	Flash string `yaml:"flash"`
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Models ModelsConfig `yaml:"models"`
}

// Load reads the optional YAML config file named by CONFIG_FILE, then lets
// environment variables override every field. A missing file is not an error.
func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        "8080",
			Mode:        "development",
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Backend:  "file",
			FilePath: "data/store.json",
		},
		Models: ModelsConfig{
			Pro:   "gemini-2.5-pro",
			Flash: "gemini-2.5-flash",
		},
	}

	path := utils.GetEnv("CONFIG_FILE", "", log)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Server.Port = utils.GetEnv("PORT", cfg.Server.Port, log)
	cfg.Server.Mode = utils.GetEnv("SERVER_MODE", cfg.Server.Mode, log)
	if origins := utils.GetEnv("CORS_ORIGINS", "", log); origins != "" {
		cfg.Server.CORSOrigins = splitCSV(origins)
	}
	cfg.Store.Backend = utils.GetEnv("STORE_BACKEND", cfg.Store.Backend, log)
	cfg.Store.FilePath = utils.GetEnv("STORE_FILE_PATH", cfg.Store.FilePath, log)
	cfg.Store.RedisAddr = utils.GetEnv("REDIS_ADDR", cfg.Store.RedisAddr, log)
	cfg.Store.RedisPassword = utils.GetEnv("REDIS_PASSWORD", cfg.Store.RedisPassword, nil)
	cfg.Store.RedisDB = utils.GetEnvAsInt("REDIS_DB", cfg.Store.RedisDB, log)
	cfg.Store.PostgresDSN = utils.GetEnv("POSTGRES_DSN", cfg.Store.PostgresDSN, nil)
	cfg.Models.Pro = utils.GetEnv("MODEL_PRO", cfg.Models.Pro, log)
	cfg.Models.Flash = utils.GetEnv("MODEL_FLASH", cfg.Models.Flash, log)

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
