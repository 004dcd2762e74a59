package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/go-petr/pet-ledger/internal/balancecache"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/entrypub"
	"github.com/go-petr/pet-ledger/internal/entryrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"

	"github.com/google/uuid"
)

// Supported LOG_STORE, CACHE_DRIVER and EVENTS_DRIVER values.
const (
	LogStorePostgres = "postgres"
	LogStoreMongo    = "mongo"
	LogStoreSQLite   = "sqlite"
	LogStoreMemory   = "memory"

	CacheRedis  = "redis"
	CacheMemory = "memory"

	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
	EventsNone     = "none"
)

const cachePrefix = "ledger:"

func (s *Server) openLogStore(ctx context.Context, conn *sql.DB) (ledgerservice.EntryRepo, error) {
	switch s.Config.LogStore {
	case LogStorePostgres, "":
		if conn == nil {
			return nil, errors.New("postgres log store needs a database connection")
		}

		return entryrepo.NewRepoPGS(conn), nil

	case LogStoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(s.Config.MongoURI))
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, func() error {
			return client.Disconnect(context.Background())
		})

		repo := entryrepo.NewRepoMongo(client, s.Config.MongoDatabase)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}

		return repo, nil

	case LogStoreSQLite:
		repo, err := entryrepo.NewRepoSQLite(s.Config.SQLitePath)
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, repo.Close)

		return repo, nil

	case LogStoreMemory:
		return entryrepo.NewRepoMem(), nil
	}

	return nil, fmt.Errorf("unsupported log store %q", s.Config.LogStore)
}

// openCache never fails. An unreachable Redis only costs cache misses, so it is logged
// and kept.
func (s *Server) openCache(ctx context.Context, logger zerolog.Logger) (*balancecache.Typed[domain.Balance], *balancecache.Typed[uuid.UUID]) {
	var backend balancecache.Backend

	switch s.Config.CacheDriver {
	case CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.Config.RedisAddr,
			Password: s.Config.RedisPassword,
			DB:       s.Config.RedisDB,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", s.Config.RedisAddr).Msg("redis is unreachable")
		}

		s.closers = append(s.closers, client.Close)
		backend = balancecache.NewRedis(client)

	default:
		if s.Config.CacheDriver != CacheMemory {
			logger.Warn().Str("driver", s.Config.CacheDriver).Msg("unknown cache driver, using memory")
		}

		backend = balancecache.NewMemory()
	}

	balances := balancecache.NewTyped[domain.Balance](backend, cachePrefix, s.Config.CacheTTL)
	accountIDs := balancecache.NewTyped[uuid.UUID](backend, cachePrefix, s.Config.CacheTTL)

	return balances, accountIDs
}

func (s *Server) openPublisher() (ledgerservice.Publisher, error) {
	switch s.Config.EventsDriver {
	case EventsNone, "":
		return nil, nil

	case EventsKafka:
		brokers := s.Config.Brokers()
		if len(brokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is empty")
		}

		p := entrypub.NewKafka(brokers, s.Config.KafkaTopic)
		s.closers = append(s.closers, p.Close)

		return p, nil

	case EventsRabbitMQ:
		conn, err := amqp.DialConfig(s.Config.RabbitMQURL, amqp.Config{
			Properties: amqp.Table{"connection_name": "pet-ledger"},
		})
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, conn.Close)

		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, ch.Close)

		if err := entrypub.DeclareExchange(ch, s.Config.RabbitMQExchange); err != nil {
			return nil, err
		}

		return entrypub.NewRabbitMQ(ch, s.Config.RabbitMQExchange), nil
	}

	return nil, fmt.Errorf("unsupported events driver %q", s.Config.EventsDriver)
}
