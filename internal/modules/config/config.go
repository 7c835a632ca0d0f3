package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`
	DB      string `mapstructure:"db_dsn"`
	Service struct {
		Host      string `mapstructure:"host"`
		AdminPort int    `mapstructure:"admin_port"`
	} `mapstructure:"service"`

	Tracing struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Feed struct {
		URL        string   `mapstructure:"url"`
		Symbols    []string `mapstructure:"symbols"`
		Timeframes []string `mapstructure:"timeframes"`
		// demo-режим: вместо WS публикуем синтетические тики
		Simulate bool `mapstructure:"simulate"`
	} `mapstructure:"feed"`

	Exchange struct {
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"exchange"`

	Aggregator struct {
		MicrobarInterval time.Duration `mapstructure:"microbar_interval"`
		FinalizePoll     time.Duration `mapstructure:"finalize_poll"`
		// относительный дрейф объёма, с которого ругаемся в RTH
		DriftWarnPct float64 `mapstructure:"drift_warn_pct"`
	} `mapstructure:"aggregator"`

	Cache struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"cache"`

	History struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
		// сколько свечей из кеша считаем "достаточно" без похода наружу
		Threshold int `mapstructure:"threshold"`
	} `mapstructure:"history"`

	Rules struct {
		Path         string        `mapstructure:"path"`
		RefreshEvery time.Duration `mapstructure:"refresh_every"`
	} `mapstructure:"rules"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}

	v := viper.New()
	v.SetConfigFile("configs/" + configFileName)
	v.SetConfigType("yaml")

	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.admin_port", 8080)
	v.SetDefault("exchange.timezone", getenvDefault("EXCHANGE_TZ", "America/New_York"))
	v.SetDefault("feed.timeframes", []string{"1m", "5m", "15m"})
	v.SetDefault("feed.simulate", boolFromEnv("FEED_SIMULATE", false))
	v.SetDefault("aggregator.microbar_interval", durationFromEnv("MICROBAR_INTERVAL", "100ms"))
	v.SetDefault("aggregator.finalize_poll", durationFromEnv("FINALIZE_POLL", "1s"))
	v.SetDefault("aggregator.drift_warn_pct", floatFromEnv("DRIFT_WARN_PCT", 5.0))
	v.SetDefault("cache.capacity", intFromEnv("CACHE_CAPACITY", 5000))
	v.SetDefault("history.threshold", intFromEnv("HISTORY_THRESHOLD", 50))
	v.SetDefault("history.timeout", durationFromEnv("HISTORY_TIMEOUT", "10s"))
	v.SetDefault("rules.path", getenvDefault("RULES_STORE_PATH", "data/rules.yaml"))
	v.SetDefault("rules.refresh_every", durationFromEnv("RULES_REFRESH", "1m"))

	// конфиг-файл опционален: дефолтов достаточно для demo-режима
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	return config, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	s := getenvDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
