// internal/output/manager.go
package output

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/utils"
)

var managerLogger = utils.NewComponentLogger("store-manager")

// NewStore opens the store the configuration names. Database connections
// are retried with backoff; a store that cannot be reached is a
// persistence error.
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	storeType := StoreType(strings.ToLower(cfg.Type))
	if storeType == "" {
		storeType = StoreMemory
	}
	if !storeType.IsValid() {
		return nil, errors.Config("open store", fmt.Errorf("unsupported store type: %s", cfg.Type))
	}

	// zero retries means the service default, negative disables retrying
	service := errors.NewServiceWithConfig(errors.RetryConfig{MaxRetries: cfg.ConnectRetries}, errors.CircuitBreakerConfig{})

	var store Store
	connect := func() error {
		s, err := openStore(ctx, storeType, cfg)
		if err != nil {
			return err
		}
		store = s
		return nil
	}
	if err := service.ExecuteWithRetry(ctx, connect, "connect "+string(storeType)); err != nil {
		return nil, errors.Persistence("open store", string(storeType), err)
	}

	managerLogger.Infof("opened %s store", storeType)
	return store, nil
}

func openStore(ctx context.Context, storeType StoreType, cfg config.StoreConfig) (Store, error) {
	var timeoutCancel context.CancelFunc = func() {}
	if cfg.Timeout > 0 {
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	defer timeoutCancel()

	sqlOpts := SQLOptions{
		ConnectionString: cfg.ConnectionString,
		Table:            cfg.Collection,
		MaxOpenConns:     cfg.MaxOpenConns,
	}

	switch storeType {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreMongoDB:
		return NewMongoStore(ctx, MongoDBOptions{
			ConnectionString: cfg.ConnectionString,
			Database:         cfg.Database,
			Collection:       cfg.Collection,
			Timeout:          cfg.Timeout,
			MaxPoolSize:      cfg.MaxOpenConns,
		})
	case StorePostgreSQL:
		return NewPostgreSQLStore(ctx, sqlOpts)
	case StoreMySQL:
		return NewMySQLStore(ctx, sqlOpts)
	case StoreSQLite:
		if sqlOpts.ConnectionString == "" {
			sqlOpts.ConnectionString = cfg.Path
		}
		return NewSQLiteStore(ctx, sqlOpts)
	case StoreJSON:
		return NewJSONStore(cfg.Path)
	case StoreCSV:
		return NewCSVStore(cfg.Path)
	case StoreExcel:
		return NewExcelStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
