package school

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("school not found")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		// QuerySchools applies AND operation on available QueryFilter fields.
		QuerySchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]School, error)
		GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// Cascade deletes the records belonging to a school, within the school deletion transaction.
	Cascade interface {
		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
	}

	// Purger removes what a school leaves outside of the database, once its deletion is committed.
	Purger interface {
		PurgeSchool(ctx context.Context, schoolID string) error
	}

	Service interface {
		// Create returns the credentials of the school_admin account. While offline, the school is queued
		// and returned with an offline ID; its password is then generated when the queue is synced.
		Create(ctx context.Context, ns NewSchool) (School, credentials.Credentials, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error)
		GetByID(ctx context.Context, id string) (School, error)
		Update(ctx context.Context, id string, us UpdateSchool) (School, error)
		UpdateLastLogin(ctx context.Context, id string) error
		Delete(ctx context.Context, id string) error
		Stats(ctx context.Context) (Summary, error)
		Export(ctx context.Context) (ExportData, error)
		// Cascade registers the deletions run with every school deletion.
		Cascade(deleters ...Cascade)
		// RegisterSyncHandlers lets syncer replay the schools created while offline.
		RegisterSyncHandlers(syncer *offline.Syncer)
	}

	service struct {
		repo     Repository
		userSvc  user.Service
		tx       core.Transactor
		cache    core.Cache
		local    core.LocalStore
		queue    *offline.Queue
		bus      *events.Bus
		logger   core.Logger
		conf     *core.Config
		cascades []Cascade
		now      func() time.Time
	}

	// offlineSchool is the payload of the queued offline.ActionCreateSchool.
	offlineSchool struct {
		OfflineID string    `json:"offline_id"`
		School    NewSchool `json:"school"`
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	userSvc user.Service,
	tx core.Transactor,
	cache core.Cache,
	local core.LocalStore,
	queue *offline.Queue,
	bus *events.Bus,
	logger core.Logger,
	conf *core.Config,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(local, "local"),
		vala.IsNotNil(queue, "queue"),
		vala.IsNotNil(bus, "bus"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		userSvc: userSvc,
		tx:      tx,
		cache:   cache,
		local:   local,
		queue:   queue,
		bus:     bus,
		logger:  logger,
		conf:    conf,
		now:     time.Now,
	}
}

func (svc *service) Cascade(deleters ...Cascade) {
	svc.cascades = append(svc.cascades, deleters...)
}

func (svc *service) Create(ctx context.Context, ns NewSchool) (School, credentials.Credentials, error) {
	sch, creds, err := svc.createRemote(ctx, ns)
	if err != nil {
		if core.IsUnavailable(err) && svc.conf.Sync.EnableOfflineMode {
			svc.logger.Warn("school.Create: remote store unavailable, queueing school", err)
			return svc.createOffline(ctx, ns)
		}
		return School{}, credentials.Credentials{}, err
	}

	svc.userSvc.MailCredentials(mail.Address{Name: sch.AdminName, Address: sch.AdminEmail}, user.RoleSchoolAdmin, creds)
	return sch, creds, nil
}

// createRemote creates the school and its school_admin account in a single transaction.
func (svc *service) createRemote(ctx context.Context, ns NewSchool) (School, credentials.Credentials, error) {
	var (
		sch   School
		creds credentials.Credentials
	)
	err := offline.Retry(ctx, svc.conf.Sync.RetryAttempts, svc.conf.Sync.RetryDelay, func() error {
		return svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
			now := svc.now().UTC()
			created, err := svc.repo.CreateSchool(ctx, School{
				Name:         ns.Name,
				Type:         ns.Type,
				BRIN:         ns.BRIN,
				StudentCount: ns.StudentCount,
				Address:      ns.Address,
				PostalCode:   ns.PostalCode,
				AdminName:    ns.AdminName,
				AdminEmail:   ns.AdminEmail,
				AdminPhone:   ns.AdminPhone,
				Notes:        ns.Notes,
				Status:       StatusActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, exec)
			if err != nil {
				return errors.Wrap(err, "creating school")
			}

			_, creds, err = svc.userSvc.CreateWithCredentials(ctx, user.NewAccount{
				Name:     created.AdminName,
				Email:    created.AdminEmail,
				Role:     user.RoleSchoolAdmin,
				SchoolID: created.ID,
				Username: credentials.SchoolUsername(created.Name),
				Password: credentials.SecurePassword(credentials.SchoolPasswordLen),
			}, exec)
			if err != nil {
				return errors.Wrap(err, "creating school admin account")
			}

			created.Username = creds.Username
			sch, err = svc.repo.UpdateSchool(ctx, created, exec)
			return err
		})
	})
	if err != nil {
		return School{}, credentials.Credentials{}, err
	}

	core.ClearCache(ctx, svc.cache, svc.logger, core.CacheKeySchools)
	svc.bus.Emit(events.SchoolCreated, sch)
	return sch, creds, nil
}

func (svc *service) createOffline(ctx context.Context, ns NewSchool) (School, credentials.Credentials, error) {
	now := svc.now().UTC()
	sch := School{
		ID:           fmt.Sprintf("%s%d", offlineIDPrefix, now.UnixMilli()),
		Name:         ns.Name,
		Type:         ns.Type,
		BRIN:         ns.BRIN,
		StudentCount: ns.StudentCount,
		Address:      ns.Address,
		PostalCode:   ns.PostalCode,
		AdminName:    ns.AdminName,
		AdminEmail:   ns.AdminEmail,
		AdminPhone:   ns.AdminPhone,
		Notes:        ns.Notes,
		Username:     credentials.SchoolUsername(ns.Name)(0),
		Status:       StatusOfflinePending,
		IsOffline:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := svc.queue.Enqueue(ctx, offline.ActionCreateSchool, offlineSchool{OfflineID: sch.ID, School: ns}); err != nil {
		return School{}, credentials.Credentials{}, errors.Wrap(err, "queueing school")
	}
	err := svc.updateLocal(ctx, func(schools []School) []School {
		return append([]School{sch}, schools...)
	})
	if err != nil {
		return School{}, credentials.Credentials{}, err
	}

	svc.bus.Emit(events.SchoolCreated, sch)
	return sch, credentials.Credentials{Username: sch.Username}, nil
}

func (svc *service) RegisterSyncHandlers(syncer *offline.Syncer) {
	syncer.Handle(offline.ActionCreateSchool, func(ctx context.Context, data json.RawMessage) error {
		var payload offlineSchool
		if err := json.Unmarshal(data, &payload); err != nil {
			return errors.Wrap(err, "decoding offline school")
		}

		sch, creds, err := svc.createRemote(ctx, payload.School)
		if err != nil {
			return err
		}
		svc.userSvc.MailCredentials(mail.Address{Name: sch.AdminName, Address: sch.AdminEmail}, user.RoleSchoolAdmin, creds)

		return svc.updateLocal(ctx, func(schools []School) []School {
			return withoutSchool(schools, payload.OfflineID)
		})
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Clean()
	ordering = core.AllowedOrderings(ordering, Orderings)

	if !filter.IsEmpty() || len(ordering) > 0 {
		schools, err := svc.repo.QuerySchools(ctx, filter, ordering)
		if err != nil && core.IsUnavailable(err) {
			return svc.queryLocal(ctx, filter)
		}
		return schools, err
	}

	schools, err := core.CachedQuery(ctx, svc.cache, svc.logger, core.CacheKeySchools, func() ([]School, error) {
		schools, err := svc.repo.QuerySchools(ctx, filter, []core.DBOrdering{defaultOrdering})
		if err != nil {
			return nil, err
		}
		svc.mirrorLocal(ctx, schools)
		return schools, nil
	})
	if err != nil {
		if core.IsUnavailable(err) {
			svc.logger.Warn("school.Query: remote store unavailable, using local schools", err)
			return svc.queryLocal(ctx, filter)
		}
		return nil, err
	}
	return schools, nil
}

// loadLocal returns the local copy of the schools list, seeded with the demo schools when empty.
func (svc *service) loadLocal(ctx context.Context) ([]School, error) {
	schools := make([]School, 0)
	if _, err := svc.local.GetJSON(ctx, core.KeyAdminSchools, &schools); err != nil {
		return nil, errors.Wrap(err, "loading local schools")
	}
	if len(schools) == 0 {
		schools = DemoSchools()
		if err := svc.local.SetJSON(ctx, core.KeyAdminSchools, schools); err != nil {
			return nil, errors.Wrap(err, "seeding local schools")
		}
	}
	return schools, nil
}

func (svc *service) updateLocal(ctx context.Context, fn func([]School) []School) error {
	schools := make([]School, 0)
	if _, err := svc.local.GetJSON(ctx, core.KeyAdminSchools, &schools); err != nil {
		return errors.Wrap(err, "loading local schools")
	}
	return errors.Wrap(svc.local.SetJSON(ctx, core.KeyAdminSchools, fn(schools)), "saving local schools")
}

func (svc *service) queryLocal(ctx context.Context, filter *QueryFilter) ([]School, error) {
	schools, err := svc.loadLocal(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]School, 0, len(schools))
	for _, sch := range schools {
		if filter.Match(sch) {
			res = append(res, sch)
		}
	}
	sortByCreatedAt(res)
	return res, nil
}

// mirrorLocal replaces the local copy with the remote schools, keeping the ones still waiting to be synced.
func (svc *service) mirrorLocal(ctx context.Context, remote []School) {
	err := svc.updateLocal(ctx, func(schools []School) []School {
		res := make([]School, 0, len(remote)+len(schools))
		for _, sch := range schools {
			if sch.IsOffline {
				res = append(res, sch)
			}
		}
		return append(res, remote...)
	})
	if err != nil {
		svc.logger.Warn("school.mirrorLocal", err)
	}
}

func (svc *service) GetByID(ctx context.Context, id string) (School, error) {
	if IsOfflineID(id) {
		schools, err := svc.loadLocal(ctx)
		if err != nil {
			return School{}, err
		}
		for _, sch := range schools {
			if sch.ID == id {
				return sch, nil
			}
		}
		return School{}, ErrNotFound
	}
	return svc.repo.GetSchool(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, us UpdateSchool) (School, error) {
	sch, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return School{}, err
	}
	us.apply(&sch)
	sch.UpdatedAt = svc.now().UTC()

	if sch, err = svc.repo.UpdateSchool(ctx, sch); err != nil {
		return School{}, err
	}
	core.ClearCache(ctx, svc.cache, svc.logger, core.CacheKeySchools)
	svc.bus.Emit(events.SchoolUpdated, sch)
	return sch, nil
}

func (svc *service) UpdateLastLogin(ctx context.Context, id string) error {
	sch, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return err
	}
	now := svc.now().UTC()
	sch.LastLogin = now
	sch.UpdatedAt = now
	if _, err = svc.repo.UpdateSchool(ctx, sch); err != nil {
		return err
	}
	core.ClearCache(ctx, svc.cache, svc.logger, core.CacheKeySchools)
	return nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if IsOfflineID(id) {
		return svc.deleteOffline(ctx, id)
	}

	if _, err := svc.repo.GetSchool(ctx, id); err != nil {
		return err
	}
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, c := range svc.cascades {
			if err := c.DeleteBySchool(ctx, id, exec); err != nil {
				return errors.Wrap(err, "deleting school records")
			}
		}
		if err := svc.userSvc.DeleteBySchool(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting school accounts")
		}
		return svc.repo.DeleteSchool(ctx, id, exec)
	})
	if err != nil {
		return err
	}

	for _, c := range svc.cascades {
		if p, ok := c.(Purger); ok {
			if err = p.PurgeSchool(ctx, id); err != nil {
				svc.logger.Error(fmt.Sprintf("school.Delete(%s): purging", id), err)
			}
		}
	}
	if err = svc.updateLocal(ctx, func(schools []School) []School { return withoutSchool(schools, id) }); err != nil {
		svc.logger.Warn("school.Delete", err)
	}
	core.ClearCache(ctx, svc.cache, svc.logger, core.SchoolCacheKeys(id)...)
	svc.bus.Emit(events.SchoolDeleted, id)
	return nil
}

// deleteOffline drops a school that was never synced, along with its queued creation.
func (svc *service) deleteOffline(ctx context.Context, id string) error {
	schools, err := svc.loadLocal(ctx)
	if err != nil {
		return err
	}
	if len(withoutSchool(schools, id)) == len(schools) {
		return ErrNotFound
	}

	items, err := svc.queue.Items(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Action != offline.ActionCreateSchool {
			continue
		}
		var payload offlineSchool
		if json.Unmarshal(item.Data, &payload) == nil && payload.OfflineID == id {
			if err = svc.queue.Remove(ctx, item.ID); err != nil {
				return err
			}
		}
	}

	if err = svc.updateLocal(ctx, func(schools []School) []School { return withoutSchool(schools, id) }); err != nil {
		return err
	}
	svc.bus.Emit(events.SchoolDeleted, id)
	return nil
}

func (svc *service) Stats(ctx context.Context) (Summary, error) {
	schools, err := svc.Query(ctx, nil, nil)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{TotalSchools: len(schools)}
	for _, sch := range schools {
		sum.TotalStudents += sch.StudentCount
	}
	return sum, nil
}

func (svc *service) Export(ctx context.Context) (ExportData, error) {
	schools, err := svc.Query(ctx, nil, nil)
	if err != nil {
		return ExportData{}, err
	}
	return ExportData{
		Schools:    schools,
		ExportDate: svc.now().UTC(),
		Version:    ExportVersion,
	}, nil
}

func withoutSchool(schools []School, id string) []School {
	res := make([]School, 0, len(schools))
	for _, sch := range schools {
		if sch.ID != id {
			res = append(res, sch)
		}
	}
	return res
}
