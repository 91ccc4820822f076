package pubsub

import (
	"fmt"
	"time"
)

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	GroupID     string `mapstructure:"group_id"`
	Partitions  int    `mapstructure:"partitions"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// Config holds the configuration for the pub/sub system.
type Config struct {
	Driver     string      `mapstructure:"driver"` // "memory", "redis", "kafka"
	BufferSize int         `mapstructure:"buffer_size"`
	Redis      RedisConfig `mapstructure:"redis"`
	Kafka      KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

const defaultBufferSize = 100

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:     "memory",
		BufferSize: defaultBufferSize,
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     "localhost:9092",
			GroupID:     "chatlog",
			Partitions:  4,
			TopicPrefix: "chat",
		},
	}
}

// NewPubSub creates a new PubSub instance based on the configuration.
func NewPubSub(cfg Config) (PubSub, error) {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	switch cfg.Driver {
	case "memory", "":
		return NewMemoryPubSub(buffer), nil
	case "redis":
		return NewRedisPubSub(cfg.Redis, buffer)
	case "kafka":
		return NewKafkaPubSub(cfg.Kafka, buffer)
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
