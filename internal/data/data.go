// Package data opens the process-wide stores and migrates the schema.
package data

import (
	"context"
	"fmt"

	auditdata "github.com/lk2023060901/blog-backend/internal/audit/data"
	authdata "github.com/lk2023060901/blog-backend/internal/auth/data"
	"github.com/lk2023060901/blog-backend/internal/conf"
	mediadata "github.com/lk2023060901/blog-backend/internal/media/data"
	"github.com/lk2023060901/blog-backend/internal/pkg/database"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/redis"
	postdata "github.com/lk2023060901/blog-backend/internal/post/data"
	"go.uber.org/zap"
)

type Data struct {
	DB    *database.DB
	Redis *redis.Client // nil when redis is disabled
}

// Models lists every persisted table
func Models() []any {
	return []any{
		&authdata.AdminPO{},
		&postdata.PostPO{},
		&mediadata.MediaFilePO{},
		&auditdata.AuditLogPO{},
	}
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&config.Database, log.Named("database"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	d := &Data{DB: db}

	if config.Redis.Enabled {
		client, err := redis.New(&config.Redis, log.Named("redis"))
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = client
	} else {
		log.Info("redis disabled, login rate limiting is off")
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}

	return d, cleanup, nil
}

// Ping reports whether the database answers
func (d *Data) Ping(ctx context.Context) error {
	return d.DB.HealthCheck(ctx)
}
