package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Laisky/disaster-alert/internal/web/middleware"
	"github.com/Laisky/disaster-alert/internal/web/user/model"
	"github.com/Laisky/disaster-alert/internal/web/user/service"
	"github.com/Laisky/disaster-alert/library/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	users []*model.User
}

func (m *memStore) find(match func(*model.User) bool) (*model.User, error) {
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, mongoLib.ErrNoDocuments
}

func (m *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memStore) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username })
}

func (m *memStore) Insert(_ context.Context, user *model.User) error {
	user.ID = primitive.NewObjectID()
	m.users = append(m.users, user)
	return nil
}

func (m *memStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*model.User, error) {
	u, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := set["role"].(string); ok {
		u.Role = v
	}
	if v, ok := set["username"].(string); ok {
		u.Username = v
	}
	if v, ok := set["location"].(string); ok {
		u.Location = v
	}
	if v, ok := set["locationKey"].(string); ok {
		u.LocationKey = v
	}
	return u, nil
}

func newEngine(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := jwt.NewSigner([]byte("secret"))
	require.NoError(t, err)
	store := &memStore{}
	svc := service.New(store, signer, service.WithBcryptCost(bcrypt.MinCost))
	ctl := New(svc, 0)

	r := gin.New()
	r.POST("/auth/register", ctl.Register)
	r.POST("/auth/login", ctl.Login)
	authed := r.Group("", middleware.Auth(svc))
	authed.GET("/users/profile", ctl.Profile)
	authed.PUT("/users/profile", ctl.UpdateProfile)
	authed.PUT("/admin/users/:id/role", middleware.RequireRoles(model.RoleAdmin), ctl.SetRole)
	return r, store
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r *gin.Engine, name string) *service.Session {
	t.Helper()

	w := do(r, http.MethodPost, "/auth/register", "",
		`{"username":"`+name+`","email":"`+name+`@example.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	sess := new(service.Session)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), sess))
	return sess
}

func TestAuthFlow(t *testing.T) {
	r, _ := newEngine(t)
	register(t, r, "asha")

	w := do(r, http.MethodPost, "/auth/register", "", `{"username":"other","email":"asha@example.com","password":"pw"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"message":"Email already registered"}`, w.Body.String())

	w = do(r, http.MethodPost, "/auth/login", "", `{"email":"asha@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token"`)

	w = do(r, http.MethodPost, "/auth/login", "", `{"email":"asha@example.com","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"message":"Invalid credentials"}`, w.Body.String())
}

func TestProfile(t *testing.T) {
	r, store := newEngine(t)
	sess := register(t, r, "asha")

	w := do(r, http.MethodGet, "/users/profile", sess.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "password")
	require.Contains(t, w.Body.String(), `"avatar":"avatar1"`)

	w = do(r, http.MethodPut, "/users/profile", sess.Token, `{"location":"New Delhi "}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Profile updated successfully")
	require.Equal(t, "new delhi", store.users[0].LocationKey)

	w = do(r, http.MethodPut, "/users/profile", sess.Token, `{"gender":"Robot"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/users/profile", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetRole(t *testing.T) {
	r, store := newEngine(t)
	admin := register(t, r, "root")
	user := register(t, r, "asha")
	store.users[0].Role = model.RoleAdmin

	cases := map[string]struct {
		token  string
		target string
		body   string
		status int
		want   string
	}{
		"not admin": {
			token: user.Token, target: admin.User.ID.Hex(), body: `{"role":"user"}`,
			status: http.StatusForbidden, want: "Access denied. Allowed roles: admin",
		},
		"invalid role": {
			token: admin.Token, target: user.User.ID.Hex(), body: `{"role":"boss"}`,
			status: http.StatusBadRequest, want: `"allowedRoles":["admin","dma","operator","user"]`,
		},
		"unknown user": {
			token: admin.Token, target: primitive.NewObjectID().Hex(), body: `{"role":"dma"}`,
			status: http.StatusNotFound, want: "User not found",
		},
		"self demotion": {
			token: admin.Token, target: admin.User.ID.Hex(), body: `{"role":"user"}`,
			status: http.StatusBadRequest, want: "You cannot remove your own admin role",
		},
		"promote": {
			token: admin.Token, target: user.User.ID.Hex(), body: `{"role":"dma"}`,
			status: http.StatusOK, want: `"role":"dma"`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodPut, "/admin/users/"+tc.target+"/role", tc.token, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			require.Contains(t, w.Body.String(), tc.want)
		})
	}
}
