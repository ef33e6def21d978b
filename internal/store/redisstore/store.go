package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	RDB       *redis.Client
	reportTTL time.Duration
}

// New connects and pings. reportTTL bounds how long a cached analysis report is served.
func New(ctx context.Context, addr, password string, db int, reportTTL time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Store{RDB: rdb, reportTTL: reportTTL}, nil
}

func (s *Store) Close() error { return s.RDB.Close() }

func reportKey(clientID uint64) string {
	return "analysis:report:" + strconv.FormatUint(clientID, 10)
}

func (s *Store) GetReport(ctx context.Context, clientID uint64) ([]byte, bool, error) {
	b, err := s.RDB.Get(ctx, reportKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) SetReport(ctx context.Context, clientID uint64, report []byte) error {
	return s.RDB.Set(ctx, reportKey(clientID), report, s.reportTTL).Err()
}

func (s *Store) DeleteReport(ctx context.Context, clientID uint64) error {
	return s.RDB.Del(ctx, reportKey(clientID)).Err()
}
