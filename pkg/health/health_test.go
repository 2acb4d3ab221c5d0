package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, svc HealthService, path string) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	r := gin.New()
	r.GET("/healthz", svc.Liveness)
	r.GET("/readyz", svc.Readiness)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestReadinessReportsDependencies(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := ProvideHealth(HealthParams{DB: db, Redis: rdb})

	rec, body := serve(t, svc, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Deps, 2)
	require.Equal(t, "database", body.Deps[0].Name)
	require.Equal(t, "redis", body.Deps[1].Name)

	mr.Close()

	rec, body = serve(t, svc, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, statusUnhealthy, body.Status)
	require.Equal(t, statusUnhealthy, body.Deps[1].Status)
}

func TestLiveness(t *testing.T) {
	rec, body := serve(t, ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, statusHealthy, body.Status)
}
