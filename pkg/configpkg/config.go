// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper fron a config file or environement variables.
type Config struct {
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DBSource            string        `mapstructure:"DB_SOURCE"`
	ServerAddress       string        `mapstructure:"SERVER_ADDRESS"`
	TokenType           string        `mapstructure:"TOKEN_TYPE"`
	TokenSymmetricKey   string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	Environement        string        `mapstructure:"GO_ENV"`
	LockTimeout         time.Duration `mapstructure:"LOCK_TIMEOUT"`

	LogStore      string `mapstructure:"LOG_STORE"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`

	CacheDriver   string        `mapstructure:"CACHE_DRIVER"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`

	EventsDriver     string `mapstructure:"EVENTS_DRIVER"`
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string `mapstructure:"KAFKA_TOPIC"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`
	RabbitMQExchange string `mapstructure:"RABBITMQ_EXCHANGE"`
}

// Brokers returns the comma separated KAFKA_BROKERS as a slice.
func (c Config) Brokers() []string {
	var brokers []string

	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("TOKEN_TYPE", "paseto")
	v.SetDefault("ACCESS_TOKEN_DURATION", 15*time.Minute)
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("LOG_STORE", "postgres")
	v.SetDefault("MONGO_DATABASE", "ledger")
	v.SetDefault("SQLITE_PATH", "ledger.db")
	v.SetDefault("CACHE_DRIVER", "memory")
	v.SetDefault("CACHE_TTL", 10*time.Minute)
	v.SetDefault("EVENTS_DRIVER", "none")
	v.SetDefault("KAFKA_TOPIC", "ledger.entries")
	v.SetDefault("RABBITMQ_EXCHANGE", "ledger.entries")
}

// Load read configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	setDefaults(v)
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
