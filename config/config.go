package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	OrdersPaidTopicName     string `yaml:"orders_paid_topic_name"`
	DispatchEventsTopicName string `yaml:"dispatch_events_topic_name"`
	ConsumerGroup           string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DispatchConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	SwaggerPath string `yaml:"swagger_path"`

	// Stage-1: рассылка всем активным курьерам, пока заказ не взят.
	Stage1IntervalSeconds int `yaml:"stage1_interval_seconds"`
	Stage1MaxSends        int `yaml:"stage1_max_sends"`

	// Stage-2: напоминание взявшему курьеру. Интервал из telegram_bot_settings
	// имеет приоритет над этим значением.
	Stage2IntervalSeconds int `yaml:"stage2_interval_seconds"`

	SettingsCacheTTLSeconds int `yaml:"settings_cache_ttl_seconds"`
	SendRateLimitPerMinute  int `yaml:"send_rate_limit_per_minute"`
	PollTimeoutSeconds      int `yaml:"poll_timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
