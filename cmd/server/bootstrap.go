package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sftpgate/internal/api"
	"github.com/charlesng35/sftpgate/internal/app"
	"github.com/charlesng35/sftpgate/internal/app/maintenance"
	iauth "github.com/charlesng35/sftpgate/internal/auth"
	"github.com/charlesng35/sftpgate/internal/cache"
	"github.com/charlesng35/sftpgate/internal/database"
	sshdriver "github.com/charlesng35/sftpgate/internal/drivers/ssh"
	"github.com/charlesng35/sftpgate/internal/handlers"
	"github.com/charlesng35/sftpgate/internal/middleware"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
	"github.com/charlesng35/sftpgate/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisClient
	Store      cache.Store
	SessionSvc *iauth.SessionService
	Dialer     gatesftp.Dialer
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the session store, SSH dialer, maintenance jobs and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks, err := stack.initialiseStore(cfg, log)
	if err != nil {
		return nil, err
	}

	stack.SessionSvc, err = iauth.NewSessionService(iauth.NewStoreSessionCache(stack.Store), cfg.Session.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	if stack.Dialer == nil {
		dialer, dialErr := sshdriver.NewDialer(cfg.SFTP.DialerConfig())
		if dialErr != nil {
			return nil, fmt.Errorf("initialise ssh dialer: %w", dialErr)
		}
		stack.Dialer = dialer
	}

	opts := []maintenance.Option{maintenance.WithSchedule(cfg.Maintenance.CacheCleanup)}
	if pruner, ok := stack.Store.(cache.Pruner); ok {
		opts = append(opts, maintenance.WithPruner(storeName(cfg), pruner))
	}
	stack.Cleaner = maintenance.NewCleaner(opts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewRateStore(stack.Store)

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Sessions:     stack.SessionSvc,
		Dialer:       stack.Dialer,
		RateStore:    stack.RateStore,
		HealthChecks: checks,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// initialiseStore selects the backend shared by sessions and rate limiting. An
// unreachable Redis degrades to the in-memory store rather than failing startup.
func (s *runtimeStack) initialiseStore(cfg *app.Config, log *zap.Logger) ([]handlers.HealthCheck, error) {
	switch storeName(cfg) {
	case app.StoreRedis:
		client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; falling back to in-memory sessions", zap.Error(err))
			break
		}
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		s.Redis = client
		s.Store = client
		return []handlers.HealthCheck{{Name: "redis", Check: client.Ping}}, nil
	case app.StoreDatabase:
		db, err := initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.Store = cache.NewDatabaseStore(db)
		return []handlers.HealthCheck{{Name: "database", Check: func(context.Context) error {
			return database.Ping(db)
		}}}, nil
	}

	s.Store = cache.NewMemoryStore()
	return nil, nil
}

func storeName(cfg *app.Config) string {
	name := strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	if name == "" {
		return app.StoreMemory
	}
	return name
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
