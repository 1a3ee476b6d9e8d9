package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	MySQLDSN  string
	RedisURL  string
	JWTSecret string
	Port      string

	CoinRPCURL  string
	CoinRPCUser string
	CoinRPCPass string
	CoinTicker  string

	DiscourseEnabled  bool
	DiscourseURL      string
	DiscourseAPIKey   string
	DiscourseUsername string
	DiscourseCategory int

	SiteURL     string
	ViewCounter bool

	FundingInterval int // seconds between reconciliation sweeps
	LedgerCacheTTL  int // seconds a ledger read stays cached
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("env %s: %v", key, err)
	}
	return b
}

func Load() Config {
	fi, _ := strconv.Atoi(getenv("FUNDING_INTERVAL", "300"))
	ttl, _ := strconv.Atoi(getenv("LEDGER_CACHE_TTL", "60"))
	dc, _ := strconv.Atoi(getenv("DISCOURSE_CATEGORY", "0"))

	cfg := Config{
		MySQLDSN:  getenv("MYSQL_DSN", "funding:funding@tcp(localhost:3306)/funding?parseTime=true"),
		RedisURL:  getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret: getenv("JWT_SECRET", ""),
		Port:      getenv("PORT", "8080"),

		CoinRPCURL:  getenv("COIN_RPC_URL", "http://localhost:34568/json_rpc"),
		CoinRPCUser: os.Getenv("COIN_RPC_USER"),
		CoinRPCPass: os.Getenv("COIN_RPC_PASS"),
		CoinTicker:  getenv("COIN_TICKER", "WOW"),

		DiscourseEnabled:  getbool("DISCOURSE_ENABLED", false),
		DiscourseURL:      os.Getenv("DISCOURSE_URL"),
		DiscourseAPIKey:   os.Getenv("DISCOURSE_API_KEY"),
		DiscourseUsername: getenv("DISCOURSE_USERNAME", "funding"),
		DiscourseCategory: dc,

		SiteURL:     getenv("SITE_URL", "http://localhost:8080"),
		ViewCounter: getbool("VIEW_COUNTER", true),

		FundingInterval: fi,
		LedgerCacheTTL:  ttl,
	}

	if cfg.DiscourseEnabled {
		if cfg.DiscourseURL == "" {
			log.Fatalf("DISCOURSE_URL not set. e.g: https://forum.domain.org")
		}
		if cfg.DiscourseAPIKey == "" {
			log.Fatalf("DISCOURSE_API_KEY not set")
		}
	}

	return cfg
}
