// Package config reads the storefront's environment and builds its
// connections.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type DBConfig struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.User, c.Pass, c.Host, c.Port, c.Name)
}

type Config struct {
	Port             string
	RedisAddr        string
	KafkaBrokers     []string
	KafkaTopic       string
	Shards           []DBConfig
	CatalogURL       string
	OrderURL         string
	JWTSecret        string
	RequestTimeout   time.Duration
	CartTTL          time.Duration
	BranchTTL        time.Duration
	NoticeTTL        time.Duration
	CatalogCacheTTL  time.Duration
	PaymentMethods   []entity.PaymentMethod
	SessionCacheSize int
	Branches         []entity.Branch
}

// DefaultBranches is used when BRANCHES_FILE is not set.
var DefaultBranches = []entity.Branch{
	{ID: "main", Name: "Main Branch", Address: "1709 Piy Margal"},
	{ID: "second", Name: "Second Branch", Address: "1767 Honradez"},
	{ID: "third", Name: "Third Branch", Address: "2201 G. Tuazon"},
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092,localhost:9093,localhost:9094")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "storefront-topic"),
		CatalogURL:   getenv("CATALOG_SERVICE_URL", "http://localhost:8081"),
		OrderURL:     getenv("ORDER_SERVICE_URL", "http://localhost:8082"),
		JWTSecret:    getenv("JWT_SECRET", "secret"),
	}

	timeoutMS, err := getInt("REQUEST_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond

	if cfg.CartTTL, err = getDuration("CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BranchTTL, err = getDuration("BRANCH_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NoticeTTL, err = getDuration("NOTICE_TTL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL, err = getDuration("CATALOG_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionCacheSize, err = getInt("SESSION_CACHE_SIZE", 1024); err != nil {
		return nil, err
	}

	for _, m := range splitList(getenv("PAYMENT_METHODS", "cash,gcash")) {
		cfg.PaymentMethods = append(cfg.PaymentMethods, entity.PaymentMethod(strings.ToLower(m)))
	}

	shardCount, err := getInt("SHARD_COUNT", 0)
	if err != nil {
		return nil, err
	}
	for i := 1; i <= shardCount; i++ {
		prefix := fmt.Sprintf("DB%d_", i)
		cfg.Shards = append(cfg.Shards, DBConfig{
			Host: getenv(prefix+"HOST", "localhost"),
			Port: getenv(prefix+"PORT", "3306"),
			User: getenv(prefix+"USER", "root"),
			Pass: os.Getenv(prefix + "PASS"),
			Name: getenv(prefix+"NAME", "storefront"),
		})
	}

	cfg.Branches = DefaultBranches
	if path := getenv("BRANCHES_FILE", ""); path != "" {
		if cfg.Branches, err = LoadBranches(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

type branchFile struct {
	Branches []entity.Branch `yaml:"branches"`
}

// LoadBranches reads the branch directory from a YAML file.
func LoadBranches(path string) ([]entity.Branch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branches file: %w", err)
	}

	var file branchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse branches file: %w", err)
	}

	seen := make(map[string]bool, len(file.Branches))
	for _, b := range file.Branches {
		if b.ID == "" || b.ID == entity.AllBranches {
			return nil, fmt.Errorf("branches file: invalid branch id %q", b.ID)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("branches file: duplicate branch id %q", b.ID)
		}
		seen[b.ID] = true
	}
	if len(file.Branches) == 0 {
		return nil, fmt.Errorf("branches file: no branches defined")
	}
	return file.Branches, nil
}
