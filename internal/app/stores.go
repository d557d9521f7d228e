package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/core/tx"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/offline"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/storage/memory"
	"depotstock/internal/infrastructure/storage/postgres"
	"depotstock/internal/infrastructure/storage/postgres/stock_repo"
	"depotstock/internal/infrastructure/storage/redisstore"
	"depotstock/pkg/logger"
	"depotstock/pkg/numerator"
)

// Check reports whether a backing store is reachable.
type Check = func(ctx context.Context) error

// Stores bundles the repositories chosen by STORE_DRIVER and QUEUE_DRIVER.
type Stores struct {
	Stock     stock.Repository
	Records   allocation.RecordRepository
	Tx        tx.Manager
	Numerator allocation.Numerator
	Defects   allocation.DefectReporter
	Queue     offline.Queue
	Guard     offline.Guard
	// Locker is set for shared queues, which the server and the worker both drain.
	Locker offline.Locker

	// Checks are run by the readiness endpoint, keyed by store name.
	Checks map[string]Check

	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects the configured drivers.
func OpenStores(ctx context.Context, cfg *Config, log *logger.Logger) (*Stores, error) {
	s := &Stores{Tx: tx.Noop{}, Checks: make(map[string]Check)}

	var rdb *redis.Client
	if cfg.StoreDriver == DriverRedis || cfg.QueueDriver == DriverRedis {
		client, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		rdb = client
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Infow("redis connected", "addr", cfg.RedisAddr)
	}

	switch cfg.StoreDriver {
	case DriverMemory:
		s.Stock = memory.NewStockRepo()
		s.Records = memory.NewRecordRepo()
		s.Numerator = numerator.NewWithSource(numerator.NewMemorySource(), cfg.NumeratorOptions())
		s.Guard = memory.NewGuard()

	case DriverRedis:
		s.Stock = redisstore.NewStockRepo(rdb)
		s.Records = redisstore.NewRecordRepo(rdb)
		s.Numerator = numerator.NewWithSource(redisstore.NewSequenceSource(rdb), cfg.NumeratorOptions())
		s.Guard = redisstore.NewGuard(rdb, cfg.QueueName, cfg.ClaimTTL)

	case DriverPostgres:
		if err := s.openPostgres(ctx, cfg, log); err != nil {
			s.Close()
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.QueueDriver == DriverRedis {
		s.Queue = redisstore.NewQueue(rdb, cfg.QueueName)
		s.Locker = redisstore.NewLocker(rdb, cfg.QueueName, cfg.DrainLeaseTTL)
	} else {
		s.Queue = memory.NewQueue()
	}

	log.Infow("stores opened", "store", cfg.StoreDriver, "queue", cfg.QueueDriver)
	return s, nil
}

func (s *Stores) openPostgres(ctx context.Context, cfg *Config, log *logger.Logger) error {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, pool.Close)
	s.Checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }

	if cfg.DBMigrate {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	txm := postgres.NewTxManager(pool)
	defects, err := postgres.NewDefectStore(txm)
	if err != nil {
		return err
	}

	s.Tx = txm
	s.Stock = stock_repo.NewStockRepo(txm)
	s.Records = stock_repo.NewRecordRepo(txm)
	s.Numerator = numerator.New(pool, cfg.NumeratorOptions())
	s.Defects = defects
	s.Guard = postgres.NewClaimStore(txm, cfg.ClaimTTL)

	pool.LogStats(ctx)
	log.Infow("postgres connected", "max_conns", poolCfg.MaxConns)
	return nil
}

// NewAllocationService wires the allocation service over the stores.
func NewAllocationService(cfg *Config, s *Stores, metrics allocation.Metrics) *allocation.Service {
	svc := allocation.NewService(
		s.Stock,
		s.Records,
		fefo.New(cfg.UndatedPolicy()),
		s.Numerator,
		s.Tx,
		cfg.Allocation(),
	)
	if s.Defects != nil {
		svc = svc.WithDefectReporter(s.Defects)
	}
	if metrics != nil {
		svc = svc.WithMetrics(metrics)
	}
	return svc
}

// NewReplayer wires the offline replayer over the stores.
func NewReplayer(s *Stores, svc *allocation.Service, metrics offline.Metrics) *offline.Replayer {
	r := offline.NewReplayer(s.Queue, s.Guard, svc)
	if s.Locker != nil {
		r = r.WithLocker(s.Locker)
	}
	if metrics != nil {
		r = r.WithMetrics(metrics)
	}
	return r
}
