// Package di wires application dependencies. Construction order is
// databases, then stores and services, then the engine; everything is
// injected via constructors.
package di

import (
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/database"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/engine"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/groupcache"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/indicators"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/marketdata"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/scheduler"
)

// Container holds all wired services
type Container struct {
	// Databases
	BarsDB  *database.DB
	CacheDB *database.DB

	// Stores and services
	BarStore         *marketdata.Store
	IndicatorService *indicators.Service
	GroupRepo        *groupcache.Repository
	Backfiller       *groupcache.Backfiller
	ReturnSource     *groupcache.CachedReturnSource

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Engine
	Resolver *engine.Resolver
	Engine   *engine.Engine

	// Jobs
	BackfillJob *scheduler.BackfillJob
}

// Close releases database connections
func (c *Container) Close() {
	if c.BarsDB != nil {
		_ = c.BarsDB.Close()
	}
	if c.CacheDB != nil {
		_ = c.CacheDB.Close()
	}
}
