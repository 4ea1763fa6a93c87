package core

import (
	"context"
	"fmt"
)

// CachedQuery returns the fresh cached value of key, or the result of query which is then cached.
// When query fails, a stale cached value is returned instead of the error.
func CachedQuery[T any](ctx context.Context, cache Cache, logger Logger, key string, query func() (T, error)) (T, error) {
	var cached T
	if found, err := cache.Get(ctx, key, &cached, false); err != nil {
		logger.Warn(fmt.Sprintf("core.CachedQuery(%s): reading cache", key), err)
	} else if found {
		return cached, nil
	}

	res, err := query()
	if err != nil {
		var stale T
		if found, cerr := cache.Get(ctx, key, &stale, true); cerr == nil && found {
			logger.Warn(fmt.Sprintf("core.CachedQuery(%s): returning stale data", key), err)
			return stale, nil
		}
		return res, err
	}

	if err = cache.Set(ctx, key, res); err != nil {
		logger.Warn(fmt.Sprintf("core.CachedQuery(%s): writing cache", key), err)
	}
	return res, nil
}

// ClearCache clears keys, logging the failure.
func ClearCache(ctx context.Context, cache Cache, logger Logger, keys ...string) {
	if err := cache.Clear(ctx, keys...); err != nil {
		logger.Warn(fmt.Sprintf("core.ClearCache(%v)", keys), err)
	}
}

// Cache keys
const CacheKeySchools = "schools"

func ClassesCacheKey(schoolID string) string  { return "classes_" + schoolID }
func TeachersCacheKey(schoolID string) string { return "teachers_" + schoolID }
func StudentsCacheKey(schoolID string) string { return "students_" + schoolID }

// SchoolCacheKeys returns every cache key holding data of the school.
func SchoolCacheKeys(schoolID string) []string {
	return []string{CacheKeySchools, ClassesCacheKey(schoolID), TeachersCacheKey(schoolID), StudentsCacheKey(schoolID)}
}
