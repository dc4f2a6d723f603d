package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/auth/credentials/idtoken"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/utils"
)

func newAuthRouter(a *AuthController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", a.Register)
	r.POST("/login", a.Login)
	r.POST("/google", a.GoogleLogin)
	r.PUT("/password", func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	}, a.ChangePassword)
	return r
}

func postJSON(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test")
	store := newMemStore()
	r := newAuthRouter(NewAuthController(store, "client"))

	w := postJSON(r, http.MethodPost, "/register", `{"email":"lan@example.com","password":"matkhau1","full_name":"Lan"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "matkhau1")
	assert.Equal(t, http.StatusBadRequest,
		postJSON(r, http.MethodPost, "/register", `{"email":"lan@example.com","password":"matkhau1","full_name":"Lan"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		postJSON(r, http.MethodPost, "/register", `{"email":"khong-hop-le","password":"123","full_name":""}`).Code)

	assert.Equal(t, http.StatusUnauthorized,
		postJSON(r, http.MethodPost, "/login", `{"email":"lan@example.com","password":"sai"}`).Code)

	w = postJSON(r, http.MethodPost, "/login", `{"email":"lan@example.com","password":"matkhau1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	claims, err := utils.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleUser), claims.Role)
}

func TestLoginRejectsLockedAccount(t *testing.T) {
	t.Setenv("JWT_SECRET", "test")
	store := newMemStore()
	r := newAuthRouter(NewAuthController(store, "client"))
	require.Equal(t, http.StatusCreated,
		postJSON(r, http.MethodPost, "/register", `{"email":"an@example.com","password":"matkhau1","full_name":"An"}`).Code)

	u, err := store.FindUserByEmail(context.Background(), "an@example.com")
	require.NoError(t, err)
	locked := false
	u.Status = &locked
	store.users[u.Email] = u

	assert.Equal(t, http.StatusForbidden,
		postJSON(r, http.MethodPost, "/login", `{"email":"an@example.com","password":"matkhau1"}`).Code)
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test")
	store := newMemStore()
	a := NewAuthController(store, "client-id")
	var gotAudience string
	a.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		gotAudience = audience
		if token != "tot" {
			return nil, errors.New("invalid")
		}
		return &idtoken.Payload{Claims: map[string]interface{}{"email": "mai@gmail.com", "name": "Mai"}}, nil
	}
	r := newAuthRouter(a)

	assert.Equal(t, http.StatusUnauthorized, postJSON(r, http.MethodPost, "/google", `{"id_token":"xau"}`).Code)

	w := postJSON(r, http.MethodPost, "/google", `{"id_token":"tot"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "client-id", gotAudience)
	u, err := store.FindUserByEmail(context.Background(), "mai@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "Mai", u.FullName)

	// lần hai dùng lại user cũ
	require.Equal(t, http.StatusOK, postJSON(r, http.MethodPost, "/google", `{"id_token":"tot"}`).Code)
	assert.Len(t, store.users, 1)
}

func TestChangePassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test")
	store := newMemStore()
	r := newAuthRouter(NewAuthController(store, ""))
	require.Equal(t, http.StatusCreated,
		postJSON(r, http.MethodPost, "/register", `{"email":"an@example.com","password":"matkhau1","full_name":"An"}`).Code)
	u, err := store.FindUserByEmail(context.Background(), "an@example.com")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, postJSON(r, http.MethodPut, "/password",
		`{"old_password":"sai","new_password":"moi123"}`, "X-User", u.ID.String()).Code)
	require.Equal(t, http.StatusOK, postJSON(r, http.MethodPut, "/password",
		`{"old_password":"matkhau1","new_password":"moi123"}`, "X-User", u.ID.String()).Code)

	assert.Equal(t, http.StatusOK,
		postJSON(r, http.MethodPost, "/login", `{"email":"an@example.com","password":"moi123"}`).Code)
}
