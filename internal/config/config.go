// Package config loads the table manager's configuration from the
// environment, following the same getenv-with-defaults shape as
// mq.LoadFromEnv in the reference corpus.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ESConfig is the search-cluster connection and pool configuration
// described in spec.md §6.
type ESConfig struct {
	Addresses   []string
	Username    string
	Password    string
	APIKey      string
	PoolSize    int
	IdlePool    int
	PoolTimeout time.Duration
}

// Config is the full process configuration.
type Config struct {
	ES              ESConfig
	PrimaryStoreURI string
	Backfill        bool
	Watch           bool
	HTTPAddr        string
}

// Load reads Config from the environment. managedTableCount sizes the
// default connection pool when ES_CONN_POOL is unset.
func Load(managedTableCount int) (*Config, error) {
	cfg := &Config{}

	var err error
	cfg.ES, err = loadESConfig(managedTableCount)
	if err != nil {
		return nil, fmt.Errorf("loading elasticsearch config: %w", err)
	}

	cfg.PrimaryStoreURI = getEnvOrDefault("PRIMARY_STORE_URI", "mongodb://localhost:27017")
	cfg.Backfill = getEnvBoolOrDefault("TABLE_MANAGER_BACKFILL", true)
	cfg.Watch = getEnvBoolOrDefault("TABLE_MANAGER_WATCH", true)
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":8090")

	return cfg, nil
}

func loadESConfig(managedTableCount int) (ESConfig, error) {
	cfg := ESConfig{
		Username: os.Getenv("ES_USERNAME"),
		Password: os.Getenv("ES_PASSWORD"),
		APIKey:   os.Getenv("ES_API_KEY"),
	}

	if uri := os.Getenv("ES_URI"); uri != "" {
		cfg.Addresses = []string{uri}
	} else {
		host := getEnvOrDefault("ES_HOST", "localhost")
		port := getEnvOrDefault("ES_PORT", "9200")
		scheme := "http"
		if tls, err := getEnvBool("ES_TLS"); err == nil && tls {
			scheme = "https"
		}
		cfg.Addresses = []string{fmt.Sprintf("%s://%s:%s", scheme, host, port)}
	}

	poolDefault := managedTableCount
	if poolDefault < 1 {
		poolDefault = 1
	}
	poolSize, err := getEnvIntOrDefault("ES_CONN_POOL", poolDefault)
	if err != nil {
		return cfg, err
	}
	cfg.PoolSize = poolSize

	idleDefault := poolSize / 4
	if idleDefault < 1 {
		idleDefault = 1
	}
	idlePool, err := getEnvIntOrDefault("ES_IDLE_POOL", idleDefault)
	if err != nil {
		return cfg, err
	}
	cfg.IdlePool = idlePool

	timeoutSecs, err := getEnvFloatOrDefault("ES_CONN_POOL_TIMEOUT", 5.0)
	if err != nil {
		return cfg, err
	}
	cfg.PoolTimeout = time.Duration(timeoutSecs * float64(time.Second))

	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, fmt.Errorf("%s unset", key)
	}
	return strconv.ParseBool(v)
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloatOrDefault(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}
