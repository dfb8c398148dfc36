package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func contextWithToken(t *testing.T, tokenStr, secret string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	assert.NoError(t, err)
	c.Set("user", token)
	return c
}

func TestGenerateTokenAndExtractClaims(t *testing.T) {
	secret := "test-secret"
	tokenStr, expiresAt, err := GenerateToken("admin-1", "construct_shop", secret, time.Hour)
	assert.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	c := contextWithToken(t, tokenStr, secret)

	userID, err := UserIDFromContext(c)
	assert.NoError(t, err)
	assert.Equal(t, "admin-1", userID)

	businessID, err := BusinessIDFromContext(c)
	assert.NoError(t, err)
	assert.Equal(t, "construct_shop", businessID)
}

func TestGenerateTokenUnscoped(t *testing.T) {
	secret := "test-secret"
	tokenStr, _, err := GenerateToken("admin-1", "", secret, time.Hour)
	assert.NoError(t, err)

	c := contextWithToken(t, tokenStr, secret)
	businessID, err := BusinessIDFromContext(c)
	assert.NoError(t, err)
	assert.Empty(t, businessID)
}

func TestGenerateTokenValidation(t *testing.T) {
	_, _, err := GenerateToken("", "", "secret", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken("admin-1", "", "", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken("admin-1", "", "secret", 0)
	assert.Error(t, err)
}

func TestUserIDFromContext_MissingUser(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_, err := UserIDFromContext(c)
	assert.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "invalid token", httpErr.Message)
}

func TestJWTMiddlewareRejectsUnsigned(t *testing.T) {
	e := echo.New()
	e.Use(JWTMiddleware("secret", nil))
	e.GET("/admin/configs", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/configs", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tokenStr, _, err := GenerateToken("admin-1", "", "secret", time.Hour)
	assert.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin/configs", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
