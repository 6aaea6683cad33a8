package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/datesheet-api/internal/models"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type recorderStub struct {
	method string
	path   string
	status int
}

func (r *recorderStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.method, r.path, r.status = method, path, status
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.POST("/datesheets/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func perform(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/datesheets/abc", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRBAC(t *testing.T) {
	admin := validatorStub{claims: &models.JWTClaims{Username: "admin", Role: models.RoleAdmin}}
	viewer := validatorStub{claims: &models.JWTClaims{Username: "guest", Role: models.RoleViewer}}

	r := newRouter(JWT(admin), RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, perform(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "Basic good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, perform(r, "Bearer good").Code)

	r = newRouter(JWT(viewer), RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, perform(r, "Bearer good").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	r := newRouter(RBAC(string(models.RoleAdmin)))
	assert.Equal(t, http.StatusUnauthorized, perform(r, "").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	var seen *models.JWTClaims
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OptionalJWT(validatorStub{claims: &models.JWTClaims{Username: "admin"}}))
	r.POST("/datesheets/:id", func(c *gin.Context) {
		seen, _ = CurrentClaims(c)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(r, "Bearer bad").Code)
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusOK, perform(r, "Bearer good").Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.Username)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	rec := &recorderStub{}
	r := newRouter(Metrics(rec))
	perform(r, "")

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/datesheets/:id", rec.path)
	assert.Equal(t, http.StatusOK, rec.status)
}

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	admin := validatorStub{claims: &models.JWTClaims{Username: "admin", Role: models.RoleAdmin}}
	r := newRouter(JWT(admin), Audit(zap.New(core), "datesheet.publish"))

	perform(r, "Bearer good")
	perform(r, "Bearer bad")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "datesheet.publish", fields["action"])
	assert.Equal(t, "admin", fields["actor"])
	assert.Equal(t, "abc", fields["resource_id"])
}

func TestResponseMeta(t *testing.T) {
	var meta map[string]interface{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.POST("/datesheets/:id", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	perform(r, "")

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}
