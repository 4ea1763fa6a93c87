package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/user"
	appfs "github.com/schoolhub/schoolhub/fs"
	"github.com/schoolhub/schoolhub/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errNotLoggedIn  = httpErr{Error: "You are not logged in"}
	errForbidden    = httpErr{Error: "You do not have access to this page"}
	errNotFound     = httpErr{Error: "Not found"}
)

// apiEnv is a server wired on top of the in-memory services of testutil.
type apiEnv struct {
	*testutil.Env
	I18n      *i18n.Translator
	Learning  *learning.Store
	AutoSaver *learning.AutoSaver
	srv       *echoapi.Server
}

func setup(t *testing.T) *apiEnv {
	t.Helper()

	env := testutil.NewEnv(t)
	tr, err := i18n.Load(appfs.FS, env.Conf.I18n.DefaultLanguage)
	require.NoError(t, err)

	// the translations of the validation errors live on uni
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	user.InitValidators(validate, uni)
	school.InitValidators(validate, uni)

	store := learning.NewStore(env.Local, env.Logger)
	saver := learning.NewAutoSaver(store, time.Hour, env.Conf.Sync.MinSaveGap)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       env.Conf,
		Logger:     env.Logger,
		Validate:   validate,
		Uni:        uni,
		I18n:       tr,
		Bus:        env.Bus,
		UserSvc:    env.UserSvc,
		SchoolSvc:  env.SchoolSvc,
		ClassSvc:   env.ClassSvc,
		TeacherSvc: env.TeacherSvc,
		StudentSvc: env.StudentSvc,
		MemorySvc:  env.MemorySvc,
		Learning:   store,
		AutoSaver:  saver,
		Queue:      env.Queue,
		Syncer:     env.Syncer,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &apiEnv{Env: env, I18n: tr, Learning: store, AutoSaver: saver, srv: srv}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a form with fields and, when content is not nil, a `file` named filename.
func newMultipartRequest(
	t *testing.T,
	method, path, token string,
	fields map[string]string,
	filename string,
	content []byte,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if content != nil {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.Copy(fw, bytes.NewReader(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept-Language", "en")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func (e *apiEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	return e.serve(newAuthRequest(method, path, token, data...))
}

func (e *apiEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := e.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func getToken(t *testing.T, e *apiEnv, usr user.User) string {
	token, err := e.srv.GenerateToken(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

// checkCodeAndData compares the body only when the test expects one.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
