package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/config"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/database"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/engine"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/groupcache"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/scheduler"
)

// Wire constructs the full dependency graph from configuration
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := wireDatabases(container, cfg, log); err != nil {
		return nil, err
	}
	wireServices(container, cfg, log)

	return container, nil
}

func wireDatabases(c *Container, cfg *config.Config, log zerolog.Logger) error {
	barsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "bars.db"),
		Profile: database.ProfileStandard,
		Name:    "bars",
	})
	if err != nil {
		return fmt.Errorf("open bars database: %w", err)
	}
	if err := barsDB.Migrate(); err != nil {
		return fmt.Errorf("migrate bars database: %w", err)
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "groupcache.db"),
		Profile: database.ProfileCache,
		Name:    "groupcache",
	})
	if err != nil {
		_ = barsDB.Close()
		return fmt.Errorf("open groupcache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		_ = barsDB.Close()
		_ = cacheDB.Close()
		return fmt.Errorf("migrate groupcache database: %w", err)
	}

	c.BarsDB = barsDB
	c.CacheDB = cacheDB
	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return nil
}

func wireServices(c *Container, cfg *config.Config, log zerolog.Logger) {
	c.EventBus = events.NewBus(log)
	c.EventManager = events.NewManager(c.EventBus, log)

	c.BarStore = marketdata.NewStore(c.BarsDB.Conn(), log)
	c.IndicatorService = indicators.NewService(c.BarStore, log)

	c.GroupRepo = groupcache.NewRepository(c.CacheDB.Conn(), log)
	c.Backfiller = groupcache.NewBackfiller(c.GroupRepo, c.BarStore, c.IndicatorService, log)
	c.ReturnSource = groupcache.NewCachedReturnSource(c.GroupRepo, c.Backfiller, log)

	c.Resolver = engine.NewResolver(cfg.StrategiesDir, cfg.DefaultStrategy, log)
	c.Engine = engine.NewEngine(c.Resolver, c.IndicatorService, c.BarStore, c.ReturnSource, c.EventManager, cfg.DebugTraces, log)

	c.BackfillJob = scheduler.NewBackfillJob(
		c.Resolver,
		c.Backfiller,
		c.EventManager,
		cfg.DefaultStrategy,
		cfg.LookbackDays,
		log,
	)
	c.BackfillJob.SetCheckpointer(c.CacheDB)
}
