package memory

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
)

var (
	// errors
	ErrNotFound    = errors.New("memory not found")
	ErrInvalidFile = errors.New("file type or size not allowed")
)

type (
	Repository interface {
		CreateMemory(ctx context.Context, m Memory, exec ...core.DBExecutor) (Memory, error)
		// QueryMemories returns the memories of the student, most recent memory date first.
		QueryMemories(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) ([]Memory, error)
		GetMemory(ctx context.Context, schoolID, studentID, id string, exec ...core.DBExecutor) (Memory, error)
		UpdateMemory(ctx context.Context, m Memory, exec ...core.DBExecutor) (Memory, error)
		DeleteMemories(ctx context.Context, filter DeleteFilter, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, schoolID, studentID string, nm NewMemory, file *Upload) (Memory, error)
		Query(ctx context.Context, schoolID, studentID string) ([]Memory, error)
		GetByID(ctx context.Context, schoolID, studentID, id string) (Memory, error)
		// Update replaces the attachment when file is not nil.
		Update(ctx context.Context, schoolID, studentID, id string, um UpdateMemory, file *Upload) (Memory, error)
		Delete(ctx context.Context, schoolID, studentID, id string) error
		// OpenFile opens an attachment of the school.
		OpenFile(ctx context.Context, schoolID, filePath string) (io.ReadCloser, core.StoredFile, error)

		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
		PurgeSchool(ctx context.Context, schoolID string) error
		DeleteByStudent(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) error
		PurgeStudent(ctx context.Context, schoolID, studentID string) error
	}

	service struct {
		repo       Repository
		studentSvc student.Service
		files      core.FileStore
		logger     core.Logger
	}
)

var (
	_ Service         = (*service)(nil)
	_ school.Cascade  = (*service)(nil)
	_ school.Purger   = (*service)(nil)
	_ student.Cascade = (*service)(nil)
	_ student.Purger  = (*service)(nil)
)

func NewService(repo Repository, studentSvc student.Service, files core.FileStore, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(studentSvc, "studentSvc"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{repo: repo, studentSvc: studentSvc, files: files, logger: logger}
}

// saveFile stores the upload under <schoolID>/<studentID>/<uuid><ext>.
func (svc *service) saveFile(ctx context.Context, schoolID, studentID string, file *Upload) (*File, error) {
	if err := file.Check(); err != nil {
		return nil, err
	}
	p := path.Join(schoolID, studentID, uuid.NewString()+file.ext())
	stored, err := svc.files.Save(ctx, core.BucketStudentFiles, p, file.Body)
	if err != nil {
		return nil, errors.Wrap(err, "saving attachment")
	}
	return &File{
		Path: stored.Path,
		URL:  svc.files.URL(core.BucketStudentFiles, stored.Path),
		Name: path.Base(file.Name),
		Type: stored.ContentType,
		Size: stored.Size,
	}, nil
}

func (svc *service) deleteFile(ctx context.Context, f *File) {
	if f == nil {
		return
	}
	if err := svc.files.Delete(ctx, core.BucketStudentFiles, f.Path); err != nil {
		svc.logger.Error(fmt.Sprintf("memory.deleteFile(%s)", f.Path), err)
	}
}

func (svc *service) Create(ctx context.Context, schoolID, studentID string, nm NewMemory, file *Upload) (Memory, error) {
	if _, err := svc.studentSvc.GetByID(ctx, schoolID, studentID); err != nil {
		return Memory{}, err
	}

	now := time.Now().UTC()
	m := Memory{
		StudentID:   studentID,
		SchoolID:    schoolID,
		Title:       nm.Title,
		Description: nm.Description,
		Date:        nm.Date,
		CaselSkill:  nm.CaselSkill,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if file != nil {
		f, err := svc.saveFile(ctx, schoolID, studentID, file)
		if err != nil {
			return Memory{}, err
		}
		m.File = f
	}

	created, err := svc.repo.CreateMemory(ctx, m)
	if err != nil {
		svc.deleteFile(ctx, m.File)
		return Memory{}, err
	}
	return created, nil
}

func (svc *service) Query(ctx context.Context, schoolID, studentID string) ([]Memory, error) {
	if _, err := svc.studentSvc.GetByID(ctx, schoolID, studentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMemories(ctx, schoolID, studentID)
}

func (svc *service) GetByID(ctx context.Context, schoolID, studentID, id string) (Memory, error) {
	return svc.repo.GetMemory(ctx, schoolID, studentID, id)
}

func (svc *service) Update(ctx context.Context, schoolID, studentID, id string, um UpdateMemory, file *Upload) (Memory, error) {
	m, err := svc.repo.GetMemory(ctx, schoolID, studentID, id)
	if err != nil {
		return Memory{}, err
	}
	um.apply(&m)
	m.UpdatedAt = time.Now().UTC()

	oldFile := m.File
	switch {
	case file != nil:
		if m.File, err = svc.saveFile(ctx, schoolID, studentID, file); err != nil {
			return Memory{}, err
		}
	case um.RemoveFile:
		m.File = nil
	}

	updated, err := svc.repo.UpdateMemory(ctx, m)
	if err != nil {
		if m.File != oldFile {
			svc.deleteFile(ctx, m.File)
		}
		return Memory{}, err
	}
	if m.File != oldFile {
		svc.deleteFile(ctx, oldFile)
	}
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, schoolID, studentID, id string) error {
	m, err := svc.repo.GetMemory(ctx, schoolID, studentID, id)
	if err != nil {
		return err
	}
	if _, err = svc.repo.DeleteMemories(ctx, DeleteFilter{SchoolID: schoolID, StudentID: studentID, ID: id}); err != nil {
		return err
	}
	svc.deleteFile(ctx, m.File)
	return nil
}

func (svc *service) OpenFile(ctx context.Context, schoolID, filePath string) (io.ReadCloser, core.StoredFile, error) {
	clean := strings.TrimPrefix(path.Clean("/"+filePath), "/")
	if schoolID == "" || !strings.HasPrefix(clean, schoolID+"/") {
		return nil, core.StoredFile{}, ErrNotFound
	}
	return svc.files.Open(ctx, core.BucketStudentFiles, clean)
}

func (svc *service) DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteMemories(ctx, DeleteFilter{SchoolID: schoolID}, exec...)
	return errors.Wrap(err, "deleting memories")
}

func (svc *service) PurgeSchool(ctx context.Context, schoolID string) error {
	return svc.files.DeleteAll(ctx, core.BucketStudentFiles, schoolID)
}

func (svc *service) DeleteByStudent(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteMemories(ctx, DeleteFilter{SchoolID: schoolID, StudentID: studentID}, exec...)
	return errors.Wrap(err, "deleting memories")
}

func (svc *service) PurgeStudent(ctx context.Context, schoolID, studentID string) error {
	return svc.files.DeleteAll(ctx, core.BucketStudentFiles, path.Join(schoolID, studentID))
}
