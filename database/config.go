/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/querykit/utils"
)

// LoadConfig reads a YAML config file over DefaultConfig, then applies the
// DB_* and QK_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML config data. Keys absent from data keep their
// defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	OverrideFromEnv(cfg)
	cfg.EngineConfig = cfg.EngineConfig.normalize()
	return cfg, nil
}

func (c EngineConfig) normalize() EngineConfig {
	def := DefaultEngineConfig()
	if c.DefaultPageSize < 1 {
		c.DefaultPageSize = def.DefaultPageSize
	}
	if c.MaxPageSize < 1 {
		c.MaxPageSize = def.MaxPageSize
	}
	if c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	if c.CacheSize < 1 {
		c.CacheSize = def.CacheSize
	}
	return c
}

// OverrideFromEnv overrides configuration values from environment variables.
func OverrideFromEnv(cfg *Config) {
	overrideConnectionFromEnv(&cfg.ConnectionConfig)

	if v, ok := envInt("QK_DEFAULT_PAGE_SIZE"); ok {
		cfg.EngineConfig.DefaultPageSize = v
	}
	if v, ok := envInt("QK_MAX_PAGE_SIZE"); ok {
		cfg.EngineConfig.MaxPageSize = v
	}
	if v, ok := envInt("QK_CACHE_SIZE"); ok {
		cfg.EngineConfig.CacheSize = v
	}
	cfg.EngineConfig.ClearAutomaticallyDefault = utils.EnvDefaultBool("QK_CLEAR_AUTOMATICALLY", cfg.EngineConfig.ClearAutomaticallyDefault)
	if _, ok := os.LookupEnv("DB_MIGRATE_ON_STARTUP"); ok {
		cfg.MigrateConfig.EnableMigrateOnStartup = true
	}
}

func overrideConnectionFromEnv(cfg *ConnectionConfig) {
	// Database connection info
	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.Type = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("DB_PORT"); ok {
		cfg.Port = v
	}
	if v := os.Getenv("DB_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	// Connection pool config
	if v, ok := envInt("DB_MAX_IDLE_CONNS"); ok {
		cfg.MaxIdleConns = v
	}
	if v, ok := envInt("DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = v
	}
	if v, ok := envInt("DB_CONN_MAX_LIFETIME"); ok {
		cfg.ConnMaxLifetime = time.Duration(v) * time.Second
	}
	// Reconnect config
	cfg.EnableReconnect = utils.EnvDefaultBool("DB_ENABLE_RECONNECT", cfg.EnableReconnect)
	if v, ok := envInt("DB_RECONNECT_INTERVAL"); ok {
		cfg.ReconnectInterval = time.Duration(v) * time.Second
	}
	// Logging config
	cfg.EnableQueryLog = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", cfg.EnableQueryLog)
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false
	}
	n, err := cast.ToIntE(v)
	return n, err == nil
}
