package mgo

import (
	"context"
	"sync"
	"time"

	"ChatApp/logger"
	errs "ChatApp/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MaxRetry    int
}

type Manager struct {
	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
}

var globalMgr Manager

// Init connects to Mongo with exponential backoff and keeps the client in a
// process-wide manager. Blocking; call once at startup.
func Init(ctx context.Context, cfg Config) error {
	if cfg.URI == "" || cfg.Database == "" {
		return errs.New("mongo uri/database missing")
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetry; attempt++ {
		opts := options.Client().ApplyURI(cfg.URI)
		if cfg.MaxPoolSize > 0 {
			opts.SetMaxPoolSize(cfg.MaxPoolSize)
		}

		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		cli, err := mongo.Connect(dialCtx, opts)
		if err == nil {
			err = cli.Ping(dialCtx, nil)
		}
		cancel()

		if err == nil {
			globalMgr.mu.Lock()
			globalMgr.client = cli
			globalMgr.db = cli.Database(cfg.Database)
			globalMgr.mu.Unlock()
			logger.Infof("[mgo] connected database=%s", cfg.Database)
			return nil
		}
		lastErr = err
		logger.Warnf("[mgo] connect attempt %d failed: %v", attempt+1, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
	return errs.WrapMsg(lastErr, "mongo connect")
}

// DB returns the configured database. Panics when Init was not called; every
// caller runs after startup wiring.
func DB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		panic("mgo not initialized, call mgo.Init first")
	}
	return globalMgr.db
}

// Collection is a shorthand for DB().Collection(name).
func Collection(name string) *mongo.Collection {
	return DB().Collection(name)
}

func Close(ctx context.Context) error {
	globalMgr.mu.Lock()
	defer globalMgr.mu.Unlock()
	if globalMgr.client == nil {
		return nil
	}
	err := globalMgr.client.Disconnect(ctx)
	globalMgr.client = nil
	globalMgr.db = nil
	return err
}
