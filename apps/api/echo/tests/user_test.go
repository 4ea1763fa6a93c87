package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/tests"
)

func Test_userApi_query(t *testing.T) {
	e := setup(t)

	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Teacher", "teacher", "teacher@test.nl", password, []string{user.RoleTeacher}, true)
	naughty := testutil.CreateUser(t, e.UserRepo, "N Dog", "ndog", "ndog@test.nl", password, []string{user.RoleStudent}, false)

	path := func(v url.Values) string { return "/v1/users?" + v.Encode() }
	adminToken := getToken(t, e, admin)

	e.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, e, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "unknown search", path: path(url.Values{"search": {"lol"}}), token: adminToken, wantData: []byte(`[]`)},
	})

	t.Run("filters", func(t *testing.T) {
		tests := []struct {
			name    string
			query   url.Values
			wantIDs []string
		}{
			{name: "all", query: url.Values{}, wantIDs: []string{admin.ID, teacher.ID, naughty.ID}},
			{name: "role", query: url.Values{"role": {user.RoleTeacher}}, wantIDs: []string{teacher.ID}},
			{name: "inactive", query: url.Values{"is_active": {"false"}}, wantIDs: []string{naughty.ID}},
			{name: "search", query: url.Values{"search": {"dog"}}, wantIDs: []string{naughty.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := e.do(http.MethodGet, path(tt.query), adminToken)
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

				var users []user.User
				unmarshal(t, rec, &users)
				ids := make([]string, len(users))
				for i, u := range users {
					ids[i] = u.ID
				}
				assert.ElementsMatch(t, tt.wantIDs, ids)
			})
		}
	})

	t.Run("ordering", func(t *testing.T) {
		rec := e.do(http.MethodGet, path(url.Values{"ordering": {"-username"}}), adminToken)
		require.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		unmarshal(t, rec, &users)
		require.Len(t, users, 3)
		assert.Equal(t, []string{"teacher", "ndog", "admin"}, []string{users[0].Username, users[1].Username, users[2].Username})
	})
}

func Test_userApi_retrieveAndUpdate(t *testing.T) {
	e := setup(t)

	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	ada := testutil.CreateUser(t, e.UserRepo, "Ada", "ada", "ada@test.nl", password, []string{user.RoleTeacher}, true)
	bob := testutil.CreateUser(t, e.UserRepo, "Bob", "bob", "bob@test.nl", password, []string{user.RoleTeacher}, true)
	adaToken := getToken(t, e, ada)

	e.run(t, []httpTest{
		{name: "self", path: "/v1/users/" + ada.ID, token: adaToken},
		{name: "someone else", path: "/v1/users/" + bob.ID, token: adaToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "admin", path: "/v1/users/" + bob.ID, token: getToken(t, e, admin)},
		{name: "unknown", path: "/v1/users/unknown", token: getToken(t, e, admin), wantCode: http.StatusNotFound},
		{
			name: "roles are set by admins", method: http.MethodPut, path: "/v1/users/" + ada.ID, token: adaToken,
			body: []byte(`{"roles":["admin"]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "rename self", method: http.MethodPut, path: "/v1/users/" + ada.ID, token: adaToken,
			body: []byte(`{"name":"Ada Lovelace"}`),
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: getToken(t, e, admin),
			wantCode: http.StatusForbidden,
		},
		{
			name: "delete", method: http.MethodDelete, path: "/v1/users/" + bob.ID, token: getToken(t, e, admin),
			wantCode: http.StatusNoContent,
		},
	})

	got, err := e.UserSvc.GetByID(context.Background(), ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)

	_, err = e.UserSvc.GetByID(context.Background(), bob.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func Test_userApi_create(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	token := getToken(t, e, admin)

	e.run(t, []httpTest{
		{
			name: "passwords mismatch", method: http.MethodPost, path: "/v1/users", token: token,
			body:     []byte(`{"name":"Cleo","username":"cleo","password":"Secret123!","password_confirm":"Other123!"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown role", method: http.MethodPost, path: "/v1/users", token: token,
			body:     []byte(`{"name":"Cleo","username":"cleo","password":"Secret123!","password_confirm":"Secret123!","roles":["king"]}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/users", token: token,
			body:     []byte(`{"name":"Cleo","username":"cleo","password":"Secret123!","password_confirm":"Secret123!","roles":["teacher"]}`),
			wantCode: http.StatusCreated,
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users", token: token,
			body:     []byte(`{"name":"Cleo","username":"cleo","password":"Secret123!","password_confirm":"Secret123!"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	// the new account can log in
	rec := e.do(http.MethodPost, loginPath, "", credsBody(t, "cleo", "Secret123!"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
