package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	bookMemory "github.com/davicafu/hexabooks/internal/book/infra/outbound/db/memory"
	bookMongo "github.com/davicafu/hexabooks/internal/book/infra/outbound/db/mongodb"
	bookPostgres "github.com/davicafu/hexabooks/internal/book/infra/outbound/db/postgres"
	bookSQLite "github.com/davicafu/hexabooks/internal/book/infra/outbound/db/sqlite"
	"github.com/davicafu/hexabooks/internal/config"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedCache "github.com/davicafu/hexabooks/internal/shared/infra/platform/cache"
	sharedMongo "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/mongodb"
	sharedPostgres "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/postgres"
	sharedSQLite "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/sqlite"
)

// storage agrupa el repositorio de libros y el outbox del mismo almacenamiento.
type storage struct {
	books  bookDomain.BookRepository
	outbox sharedDomain.OutboxRepository
	close  func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn("Using in-memory storage, data is lost on restart")
		repo := bookMemory.NewBookRepoMemory()
		return &storage{books: repo, outbox: repo, close: func(context.Context) error { return nil }}, nil

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		// SQLite admite un único escritor.
		db.SetMaxOpenConns(1)
		if err := bookSQLite.InitSQLite(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		log.Info("SQLite storage ready", zap.String("path", cfg.SQLitePath))
		return &storage{
			books:  bookSQLite.NewBookRepoSQLite(db),
			outbox: sharedSQLite.NewOutboxRepoSQLite(db),
			close:  func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping Postgres: %w", err)
		}
		if err := bookPostgres.InitPostgres(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("Postgres storage ready")
		return &storage{
			books:  bookPostgres.NewBookRepoPostgres(db),
			outbox: sharedPostgres.NewOutboxRepoPostgres(db),
			close:  func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverMongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		repo, err := bookMongo.NewBookRepoMongoDB(ctx, client, cfg.MongoDatabase)
		if err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
		}
		log.Info("MongoDB storage ready", zap.String("database", cfg.MongoDatabase))
		return &storage{
			books:  repo,
			outbox: sharedMongo.NewOutboxRepoMongoDB(client, cfg.MongoDatabase),
			close:  client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}

// openCache usa Redis si está configurado y responde; si no, la caché en memoria.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (sharedCache.Cache, func()) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			log.Info("Redis connected, cache enabled", zap.String("addr", cfg.RedisAddr))
			return sharedCache.NewRedisCache(rdb, cfg.CacheTTL), func() { rdb.Close() }
		}
		log.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
		rdb.Close()
	}
	return sharedCache.NewInMemoryCache(ctx, cfg.CacheTTL, 3*cfg.CacheTTL), func() {}
}
