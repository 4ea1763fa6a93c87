package core

import (
	"context"
	"io"
	"time"
)

// Storage keys of the local fallback store.
const (
	KeyAdminSchools       = "admin_schools"
	KeyLearningSystem     = "integratedLearningSystem"
	KeyTimeline           = "timeline"
	KeyTaskCompletions    = "taskCompletions"
	KeyCloudSyncEnabled   = "cloudSyncEnabled"
	KeyLastSyncTime       = "lastSyncTime"
	KeyOfflineQueue       = "offline_queue"
	KeyI18nPreferences    = "school-i18n-preferences"
	KeyThemePreference    = "app-theme"
	KeyDarkModePreference = "app-dark-mode"
)

// BucketStudentFiles holds the memory attachments.
const BucketStudentFiles = "student-files"

type (
	// Cache is a key/value cache whose entries expire after a TTL.
	// Expired entries stay readable with ignoreExpiry until they are cleared.
	Cache interface {
		Get(ctx context.Context, key string, dst interface{}, ignoreExpiry bool) (bool, error)
		Set(ctx context.Context, key string, val interface{}) error
		// Clear removes the given keys, or everything when no key is given.
		Clear(ctx context.Context, keys ...string) error
	}

	// LocalStore is the on-disk fallback store used while the remote store is unreachable.
	LocalStore interface {
		Get(ctx context.Context, key string) (string, bool, error)
		Set(ctx context.Context, key, value string) error
		GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
		SetJSON(ctx context.Context, key string, val interface{}) error
		Remove(ctx context.Context, keys ...string) error
		Keys(ctx context.Context, prefix string) ([]string, error)
	}

	StoredFile struct {
		Path        string    `json:"path"`
		Name        string    `json:"name"`
		ContentType string    `json:"content_type"`
		Size        int64     `json:"size"`
		ModTime     time.Time `json:"-"`
	}

	// FileStore keeps uploaded files in named buckets.
	FileStore interface {
		Save(ctx context.Context, bucket, path string, r io.Reader) (StoredFile, error)
		Open(ctx context.Context, bucket, path string) (io.ReadCloser, StoredFile, error)
		Delete(ctx context.Context, bucket, path string) error
		// DeleteAll removes every file under the prefix directory.
		DeleteAll(ctx context.Context, bucket, prefix string) error
		URL(bucket, path string) string
	}
)
