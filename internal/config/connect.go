package config

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/segmentio/kafka-go"
)

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{}, // Balancer for selecting partition
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

// ConnectDB opens one shard, retrying while the server comes up.
func ConnectDB(c DBConfig, retries int, wait time.Duration) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < retries; i++ {
		db, err = sql.Open("mysql", c.DSN())
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info().Msgf("Connected to DB %s", c.Name)
				return db, nil
			}
			db.Close()
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s (%s:%s)", i+1, c.Name, c.Host, c.Port)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", c.Name, c.Host, c.Port, err)
}

// ConnectShards connects every configured shard, closing any already open
// when one fails.
func ConnectShards(shards []DBConfig, retries int, wait time.Duration) ([]*sql.DB, error) {
	dbs := make([]*sql.DB, 0, len(shards))
	for _, s := range shards {
		db, err := ConnectDB(s, retries, wait)
		if err != nil {
			for _, open := range dbs {
				open.Close()
			}
			return nil, err
		}
		dbs = append(dbs, db)
	}
	return dbs, nil
}
