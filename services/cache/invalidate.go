package cachesvc

import (
	"context"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/events"
)

// Invalidate clears the cached data of the remote rows changed on bus, until off is called.
func Invalidate(cache core.Cache, bus *events.Bus, logger core.Logger) (off func()) {
	return bus.On(events.DataUpdated, func(payload interface{}) {
		change, ok := payload.(events.DataChange)
		if !ok {
			return
		}
		ctx := context.Background()

		schoolID := change.SchoolID()
		if change.Table == "*" || schoolID == "" {
			// notifications were missed or the row cannot be scoped
			core.ClearCache(ctx, cache, logger)
			return
		}
		core.ClearCache(ctx, cache, logger, core.SchoolCacheKeys(schoolID)...)
	})
}
