// Package config reads the pipeline's environment-style configuration.
// Required credentials are validated per command before any I/O is
// attempted.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultChunkSize      = 10000
	DefaultMaxConcurrency = 4
	DefaultStagingPrefix  = "Data"
)

// Source holds the operational Postgres store credentials.
type Source struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (s Source) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", s.User, s.Password, s.Host, s.Port, s.Database)
}

func (s Source) Validate() error {
	return requireAll(map[string]string{
		"SOURCE_HOST":     s.Host,
		"SOURCE_PORT":     s.Port,
		"SOURCE_USER":     s.User,
		"SOURCE_PASSWORD": s.Password,
	})
}

// Staging holds the S3 staging layer settings.
type Staging struct {
	Bucket string
	Prefix string
	Region string
}

func (s Staging) Validate() error {
	return requireAll(map[string]string{
		"STAGING_BUCKET": s.Bucket,
	})
}

// Warehouse holds the analytical warehouse credentials.
type Warehouse struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

func (w Warehouse) Validate() error {
	return requireAll(map[string]string{
		"WAREHOUSE_ADDR":     w.Addr,
		"WAREHOUSE_USERNAME": w.Username,
		"WAREHOUSE_PASSWORD": w.Password,
	})
}

type Config struct {
	Source    Source
	Staging   Staging
	Warehouse Warehouse

	ChunkSize      int
	MaxConcurrency int
}

// FromEnv builds a Config from the process environment. A .env file in the
// working directory is loaded first when present, without overriding
// variables already set.
func FromEnv() Config {
	_ = godotenv.Load()
	return Config{
		Source: Source{
			Host:     os.Getenv("SOURCE_HOST"),
			Port:     getenvDefault("SOURCE_PORT", "5432"),
			User:     os.Getenv("SOURCE_USER"),
			Password: os.Getenv("SOURCE_PASSWORD"),
			Database: getenvDefault("SOURCE_DATABASE", "olist_ecommerce"),
		},
		Staging: Staging{
			Bucket: os.Getenv("STAGING_BUCKET"),
			Prefix: getenvDefault("STAGING_PREFIX", DefaultStagingPrefix),
			Region: os.Getenv("STAGING_REGION"),
		},
		Warehouse: Warehouse{
			Addr:     os.Getenv("WAREHOUSE_ADDR"),
			Database: getenvDefault("WAREHOUSE_DATABASE", "default"),
			Username: getenvDefault("WAREHOUSE_USERNAME", "default"),
			Password: os.Getenv("WAREHOUSE_PASSWORD"),
			Secure:   os.Getenv("WAREHOUSE_SECURE") == "true",
		},
		ChunkSize:      DefaultChunkSize,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireAll(vars map[string]string) error {
	missing := make([]string, 0)
	for key, val := range vars {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
