// Package learning keeps the learning data blob of a school (students' tasks, logbook, goals, timeline...)
// in the local store.
package learning

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

const ExportVersion = "2.0"

var ErrInvalidImport = errors.New("import data must be a JSON object")

// Records are opaque to the server: only their count matters here.
type Records []json.RawMessage

type Snapshot struct {
	Students        Records                    `json:"students"`
	Tasks           Records                    `json:"tasks"`
	Subjects        Records                    `json:"subjects"`
	LogbookEntries  Records                    `json:"logbookEntries"`
	FeedbackEntries Records                    `json:"feedbackEntries"`
	PersonalGoals   Records                    `json:"personalGoals"`
	Milestones      Records                    `json:"milestones"`
	CustomTokens    Records                    `json:"customTokens"`
	Timeline        Records                    `json:"timeline"`
	Groups          Records                    `json:"groups"`
	ReflectionCards map[string]json.RawMessage `json:"reflectionCards"`
	LastSaved       *time.Time                 `json:"lastSaved,omitempty"`

	// Extra holds the top-level keys this server does not know, written back as is.
	Extra map[string]json.RawMessage `json:"-"`
}

var snapshotKeys = []string{
	"students", "tasks", "subjects", "logbookEntries", "feedbackEntries", "personalGoals",
	"milestones", "customTokens", "timeline", "groups", "reflectionCards", "lastSaved",
}

// snapshotFields has the fields of Snapshot without its JSON methods.
type snapshotFields Snapshot

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields snapshotFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, key := range snapshotKeys {
		delete(obj, key)
	}
	fields.Extra = nil
	if len(obj) > 0 {
		fields.Extra = obj
	}
	*s = Snapshot(fields)
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(snapshotFields(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}
	var obj map[string]json.RawMessage
	if err = json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for key, val := range s.Extra {
		if _, known := obj[key]; !known {
			obj[key] = val
		}
	}
	return json.Marshal(obj)
}

// normalize replaces missing collections by empty ones.
func (s *Snapshot) normalize() {
	for _, recs := range []*Records{
		&s.Students, &s.Tasks, &s.Subjects, &s.LogbookEntries, &s.FeedbackEntries,
		&s.PersonalGoals, &s.Milestones, &s.CustomTokens, &s.Timeline, &s.Groups,
	} {
		if *recs == nil {
			*recs = Records{}
		}
	}
	if s.ReflectionCards == nil {
		s.ReflectionCards = map[string]json.RawMessage{}
	}
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Students) == 0 && len(s.Tasks) == 0 && len(s.Subjects) == 0 && len(s.LogbookEntries) == 0 &&
		len(s.FeedbackEntries) == 0 && len(s.PersonalGoals) == 0 && len(s.Milestones) == 0 &&
		len(s.CustomTokens) == 0 && len(s.Timeline) == 0 && len(s.Groups) == 0 && len(s.ReflectionCards) == 0
}

type Export struct {
	Snapshot
	ExportDate time.Time `json:"exportDate"`
	Version    string    `json:"version"`
}

const (
	keyExportDate = "exportDate"
	keyVersion    = "version"
)

func (e Export) MarshalJSON() ([]byte, error) {
	date, err := json.Marshal(e.ExportDate)
	if err != nil {
		return nil, err
	}
	version, err := json.Marshal(e.Version)
	if err != nil {
		return nil, err
	}

	snap := e.Snapshot
	snap.Extra = make(map[string]json.RawMessage, len(e.Extra)+2)
	for key, val := range e.Extra {
		snap.Extra[key] = val
	}
	snap.Extra[keyExportDate], snap.Extra[keyVersion] = date, version
	return json.Marshal(snap)
}

func (e *Export) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &e.Snapshot); err != nil {
		return err
	}
	if raw, ok := e.Extra[keyExportDate]; ok {
		if err := json.Unmarshal(raw, &e.ExportDate); err != nil {
			return err
		}
	}
	if raw, ok := e.Extra[keyVersion]; ok {
		if err := json.Unmarshal(raw, &e.Version); err != nil {
			return err
		}
	}
	e.Snapshot.dropExportKeys()
	return nil
}

// dropExportKeys removes the export envelope from the extra keys.
func (s *Snapshot) dropExportKeys() {
	delete(s.Extra, keyExportDate)
	delete(s.Extra, keyVersion)
	if len(s.Extra) == 0 {
		s.Extra = nil
	}
}

// Store reads and writes the snapshots. scope is the school ID; the empty scope is the global blob.
type Store struct {
	local  core.LocalStore
	logger core.Logger
	now    func() time.Time
}

func NewStore(local core.LocalStore, logger core.Logger) *Store {
	vala.BeginValidation().Validate(
		vala.IsNotNil(local, "local"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Store{local: local, logger: logger, now: time.Now}
}

func scopedKey(key, scope string) string {
	if scope == "" {
		return key
	}
	return key + ":" + scope
}

// Load returns the snapshot of scope. A separately stored timeline fills an empty one.
func (s *Store) Load(ctx context.Context, scope string) (Snapshot, error) {
	var snap Snapshot
	if _, err := s.local.GetJSON(ctx, scopedKey(core.KeyLearningSystem, scope), &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "loading learning data")
	}
	snap.normalize()

	if len(snap.Timeline) == 0 {
		var timeline Records
		if _, err := s.local.GetJSON(ctx, scopedKey(core.KeyTimeline, scope), &timeline); err != nil {
			s.logger.Warn("learning.Load: reading separate timeline", err)
		} else if len(timeline) > 0 {
			snap.Timeline = timeline
		}
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, scope string, snap Snapshot) (Snapshot, error) {
	snap.normalize()
	now := s.now().UTC()
	snap.LastSaved = &now
	if err := s.local.SetJSON(ctx, scopedKey(core.KeyLearningSystem, scope), snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "saving learning data")
	}
	return snap, nil
}

func (s *Store) Export(ctx context.Context, scope string) (Export, error) {
	snap, err := s.Load(ctx, scope)
	if err != nil {
		return Export{}, err
	}
	return Export{Snapshot: snap, ExportDate: s.now().UTC(), Version: ExportVersion}, nil
}

// Import replaces the snapshot of scope with data (an export or a bare snapshot).
func (s *Store) Import(ctx context.Context, scope string, data []byte) (Snapshot, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return Snapshot{}, ErrInvalidImport
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, core.NewValidationError(errors.Wrap(err, "decoding import"))
	}
	snap.dropExportKeys()
	return s.Save(ctx, scope, snap)
}

// Clear removes every learning key of scope.
func (s *Store) Clear(ctx context.Context, scope string) error {
	keys := []string{
		core.KeyLearningSystem, core.KeyTimeline, core.KeyTaskCompletions, core.KeyCloudSyncEnabled, core.KeyLastSyncTime,
	}
	for i, key := range keys {
		keys[i] = scopedKey(key, scope)
	}
	return errors.Wrap(s.local.Remove(ctx, keys...), "clearing learning data")
}

// LastSync returns when the data of scope was last synced manually.
func (s *Store) LastSync(ctx context.Context, scope string) (time.Time, error) {
	val, found, err := s.local.Get(ctx, scopedKey(core.KeyLastSyncTime, scope))
	if err != nil || !found {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}

func (s *Store) setLastSync(ctx context.Context, scope string, t time.Time) error {
	return s.local.Set(ctx, scopedKey(core.KeyLastSyncTime, scope), t.UTC().Format(time.RFC3339))
}
