package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/perfect-api/apiserver/internal/store/memory"
	"github.com/perfect-api/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const missingID = "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"

func TestAdminGate(t *testing.T) {
	api := newTestAPI(t, nil)
	_, userToken := api.seed("Bo", "bo@mail.com", "pw", types.RoleUser)

	rec := api.do(http.MethodGet, "/users/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_ERROR", errorCode(t, rec))

	rec = api.do(http.MethodGet, "/users/list", "garbage", nil)
	assert.Equal(t, "TOKEN_ERROR", errorCode(t, rec))

	rec = api.do(http.MethodGet, "/users/list", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "You don't have permission to access this resource!", body["message"])
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestRoleDowngradeAppliesOnNextRequest(t *testing.T) {
	api := newTestAPI(t, nil)
	_, rootToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	adminID, adminToken := api.seed("Second", "second@mail.com", "pw", types.RoleAdmin)

	rec := api.do(http.MethodGet, "/users/list", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPatch, "/users/update-role/"+adminID, rootToken, map[string]string{"role": "USER"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := api.tokens.Verify(adminToken)
	require.NoError(t, err, "old token still verifies")

	rec = api.do(http.MethodGet, "/users/list", adminToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestCreateUserEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	_, userToken := api.seed("Bo", "bo@mail.com", "pw", types.RoleUser)

	rec := api.do(http.MethodPost, "/users/save/admin", adminToken, map[string]string{
		"name": "New Admin", "email": "NEW@mail.com", "password": "pw123456", "role": "USER",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Admin user created successfully", body["message"])
	assert.Equal(t, "ADMIN", body["data"].(map[string]any)["Permission"].(map[string]any)["role"])

	rec = api.do(http.MethodPost, "/users/save/admin", userToken, map[string]string{
		"name": "Nope", "email": "nope@mail.com", "password": "pw123456",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/users/save/regular", userToken, map[string]string{
		"name": "Friend", "email": "friend@mail.com", "password": "pw123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Regular user created successfully", decodeBody(t, rec)["message"])

	rec = api.do(http.MethodPost, "/users/save/regular", userToken, map[string]string{
		"name": "Friend", "email": "friend@mail.com", "password": "pw123456",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListUsersHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	for i := 0; i < 11; i++ {
		api.seed(fmt.Sprintf("Member %d", i), fmt.Sprintf("m%d@mail.com", i), "pw", types.RoleUser)
	}

	rec := api.do(http.MethodGet, "/users/list?page=2&limit=5", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Users listed successfully", body["message"])
	assert.Equal(t, map[string]any{"total": 12.0, "totalPages": 3.0, "currentPage": 2.0, "limit": 5.0}, body["pagination"])
	assert.Len(t, body["data"], 5)

	rec = api.do(http.MethodGet, "/users/list?page=99&limit=5", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Empty(t, body["data"])
	assert.Equal(t, 12.0, body["pagination"].(map[string]any)["total"])

	rec = api.do(http.MethodGet, "/users/list?page=abc&limit=xyz", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pagination := decodeBody(t, rec)["pagination"].(map[string]any)
	assert.Equal(t, 1.0, pagination["currentPage"])
	assert.Equal(t, 10.0, pagination["limit"])

	rec = api.do(http.MethodGet, "/users/list?limit=500", adminToken, nil)
	assert.Equal(t, 100.0, decodeBody(t, rec)["pagination"].(map[string]any)["limit"])

	for _, raw := range []string{"0", "-4"} {
		rec = api.do(http.MethodGet, "/users/list?limit="+raw, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body = decodeBody(t, rec)
		assert.Equal(t, 1.0, body["pagination"].(map[string]any)["limit"], "limit=%s", raw)
		assert.Len(t, body["data"], 1)
	}

	for _, raw := range []string{"9223372036854775807", "99999999999999999999999"} {
		rec = api.do(http.MethodGet, "/users/list?limit=5&page="+raw, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body = decodeBody(t, rec)
		assert.Empty(t, body["data"], "page=%s", raw)
		assert.Equal(t, 12.0, body["pagination"].(map[string]any)["total"])
	}

	rec = api.do(http.MethodGet, "/users/list?name=member%201&role=user", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 2, "Member 1 and Member 10")

	rec = api.do(http.MethodGet, "/users/list?role=REGULAR_USER", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpdateRemoveHandlers(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	anaID, _ := api.seed("Ana", "ana@mail.com", "pw", types.RoleUser)
	api.seed("Bo", "bo@mail.com", "pw", types.RoleUser)

	rec := api.do(http.MethodGet, "/users/list/"+anaID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User found successfully", decodeBody(t, rec)["message"])

	rec = api.do(http.MethodGet, "/users/list/"+missingID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(t, rec))

	rec = api.do(http.MethodGet, "/users/list/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPut, "/users/update/"+anaID, adminToken, map[string]string{"email": "BO@mail.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_ALREADY_IN_USE", errorCode(t, rec))

	rec = api.do(http.MethodPut, "/users/update/"+anaID, adminToken, map[string]string{"name": " Ana Maria ", "email": " "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Ana Maria", data["name"])
	assert.Equal(t, "ana@mail.com", data["email"])

	rec = api.do(http.MethodPut, "/users/update/"+anaID, adminToken, map[string]string{"email": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodDelete, "/users/remove/"+anaID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"User removed successfully"}`, rec.Body.String())

	rec = api.do(http.MethodDelete, "/users/remove/"+anaID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConcurrentRemoveHandlers(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	anaID, _ := api.seed("Ana", "ana@mail.com", "pw", types.RoleUser)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = api.do(http.MethodDelete, "/users/remove/"+anaID, adminToken, nil).Code
		}(i)
	}
	wg.Wait()
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusNotFound}, codes)
}

func TestChangePasswordHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	_, token := api.seed("Ana", "ana@mail.com", "old-password", types.RoleUser)

	rec := api.do(http.MethodPatch, "/users/change-password", token, map[string]string{"password": "new-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User password updated successfully", decodeBody(t, rec)["message"])

	rec = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@mail.com", "password": "new-password"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPatch, "/users/change-password", token, map[string]string{"password": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPatch, "/users/change-password", token, `{"password":"x"}{"junk":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@mail.com", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rejected body must not change the password")
}

func TestUpdateRoleAndRolesHandlers(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)
	anaID, _ := api.seed("Ana", "ana@mail.com", "pw", types.RoleUser)

	rec := api.do(http.MethodPatch, "/users/update-role/"+anaID, adminToken, map[string]string{"roleId": memory.AdminPermissionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User role updated successfully", decodeBody(t, rec)["message"])

	rec = api.do(http.MethodPatch, "/users/update-role/"+anaID, adminToken, map[string]string{"roleId": missingID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROLE_NOT_FOUND", errorCode(t, rec))

	rec = api.do(http.MethodPatch, "/users/update-role/"+anaID, adminToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/users/roles", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 2)
}

func TestExportHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	_, adminToken := api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)

	rec := api.do(http.MethodPost, "/users/export", adminToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "EXPORT_DISABLED", errorCode(t, rec))

	objects := &recordingObjects{}
	api = newTestAPI(t, objects)
	_, adminToken = api.seed("Root", "root@mail.com", "pw", types.RoleAdmin)

	rec = api.do(http.MethodPost, "/users/export", adminToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, 1.0, data["count"])
	assert.Len(t, objects.keys, 1)
}
