package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/internal/services"
	"github.com/perfect-api/apiserver/internal/storage"
	"github.com/perfect-api/apiserver/internal/store/memory"
	"github.com/perfect-api/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) AuthOutcome(operation, outcome string) {
	o.outcomes[operation+"/"+outcome]++
}

type testAPI struct {
	t        *testing.T
	store    *memory.Store
	tokens   *auth.TokenIssuer
	users    *services.UserService
	observer *countingObserver
	router   chi.Router
}

func newTestAPI(t *testing.T, objects services.ObjectStore) *testAPI {
	t.Helper()
	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	tokens := auth.NewTokenIssuer(auth.DefaultTokenConfig("handler-secret"))
	authService := services.NewAuthService(st.Users(), hasher, tokens, nil, logger)
	userService := services.NewUserService(st.Users(), st.Permissions(), hasher, nil, logger)
	observer := &countingObserver{outcomes: map[string]int{}}
	var exports *services.ExportService
	if objects != nil {
		exports = services.NewExportService(st.Users(), objects)
	}

	authenticate := Authenticate(tokens)
	requireAdmin := RequireRole(userService, types.RoleAdmin, logger)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz(st, logger))
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(authService, observer, logger), authenticate)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(userService, exports, logger), authenticate, requireAdmin)
	})

	return &testAPI{t: t, store: st, tokens: tokens, users: userService, observer: observer, router: r}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// seed creates a user directly and returns its id and a fresh token.
func (a *testAPI) seed(name, email, password string, role types.Role) (string, string) {
	a.t.Helper()
	var (
		result services.Result
		err    error
	)
	account := services.Account{Name: name, Email: email, Password: password}
	if role == types.RoleAdmin {
		result, err = a.users.CreateAdminUser(context.Background(), "seed", account)
	} else {
		result, err = a.users.CreateRegularUser(context.Background(), "seed", account)
	}
	require.NoError(a.t, err)
	token, err := a.tokens.Issue(result.Data.ID, role)
	require.NoError(a.t, err)
	return result.Data.ID, token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "error envelope missing: %s", rec.Body.String())
	return errBody["code"].(string)
}

type recordingObjects struct {
	keys []string
}

func (o *recordingObjects) EnsureBucket(context.Context) error { return nil }

func (o *recordingObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return storage.Object{}, err
	}
	o.keys = append(o.keys, key)
	return storage.Object{Bucket: "exports", Key: key, Size: size, ContentType: contentType}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }
