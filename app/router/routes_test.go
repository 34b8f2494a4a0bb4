package router_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/handlers"
	"github.com/amirphl/audience-orchestrator/app/middleware"
	"github.com/amirphl/audience-orchestrator/app/router"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/app/services"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/repository"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.ProductionConfig {
	return &config.ProductionConfig{
		Server: config.ServerConfig{
			ReadTimeout:   5 * time.Second,
			WriteTimeout:  5 * time.Second,
			IdleTimeout:   5 * time.Second,
			BodyLimit:     1024 * 1024,
			EnableMetrics: true,
		},
		Security: config.SecurityConfig{
			AllowedOrigins:  []string{"http://localhost:3000"},
			AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders:  []string{"Content-Type", "Authorization"},
			GlobalRateLimit: 1000,
			RateLimitWindow: time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Export:  config.ExportConfig{Dir: t.TempDir(), TTL: time.Hour},
		Deployment: config.DeploymentConfig{
			Environment: "test",
			Version:     "test",
		},
	}
}

type apiEnv struct {
	app    *fiber.App
	tokens services.TokenService
}

func newAPIEnv(t *testing.T, testDB *testingutil.TestDB) *apiEnv {
	t.Helper()
	require.NoError(t, testDB.ClearAllTables())
	cfg := testConfig(t)

	tokens, err := services.NewTokenService(time.Hour, "test", "test-api", false, "", "", "test-secret")
	require.NoError(t, err)

	jobs := repository.NewJobRepository(testDB.DB)
	campaigns := repository.NewCampaignRepository(testDB.DB)
	audiences := repository.NewFacebookAudienceRepository(testDB.DB)
	exports := repository.NewAudienceExportRepository(testDB.DB)
	auditLogs := repository.NewAuditLogRepository(testDB.DB)
	jobScheduler := scheduler.NewJobScheduler(jobs, nil)
	client := testingutil.NewMockFacebookClient()

	exportFlow := businessflow.NewAudienceExportFlow(campaigns, audiences, exports, jobScheduler, cfg.Export, nil)
	lifecycleFlow := businessflow.NewCampaignLifecycleFlow(
		campaigns,
		repository.NewFacebookAccountRepository(testDB.DB),
		audiences,
		jobs,
		exports,
		repository.NewCampaignDataRepository(testDB.DB),
		jobScheduler,
		client,
		&testingutil.StaticTokenValidator{Invalid: map[string]bool{}},
		exportFlow,
		testDB.DB,
		nil,
	)

	r := router.NewFiberRouter(
		cfg,
		nil,
		middleware.NewAuthMiddleware(tokens),
		handlers.NewCampaignLifecycleHandler(lifecycleFlow),
		handlers.NewJobHandler(businessflow.NewJobAdminFlow(jobs, jobScheduler, nil)),
		handlers.NewAudienceHandler(businessflow.NewAudienceQueryFlow(campaigns, audiences), exportFlow),
		handlers.NewAuditHandler(businessflow.NewAuditFlow(auditLogs)),
		middleware.Audit(auditLogs, nil),
	)
	r.SetupRoutes()

	fixtures := testingutil.NewTestFixtures(testDB)
	_, err = fixtures.CreateTargetingContext("X1", 1, 1)
	require.NoError(t, err)
	_, err = fixtures.CreateTestCampaign("C1", "X1", "act_1")
	require.NoError(t, err)
	_, err = fixtures.AttachTestAccount("C1", "A1", true)
	require.NoError(t, err)

	return &apiEnv{app: r.GetApp(), tokens: tokens}
}

func (e *apiEnv) do(t *testing.T, method, path, role, body string) (int, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		token, err := e.tokens.GenerateOperatorToken("op-"+role, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(t *testing.T, resp dto.APIResponse) string {
	t.Helper()
	detail, ok := resp.Error.(map[string]any)
	require.True(t, ok, "error detail missing")
	code, _ := detail["code"].(string)
	return code
}

func TestRoutes(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newAPIEnv(t, testDB)

		t.Run("HealthIsPublic", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/health", "", "")
			assert.Equal(t, http.StatusOK, status)
			assert.True(t, resp.Success)
		})

		t.Run("MetricsAreExposed", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			resp, err := env.app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})

		t.Run("RequiresBearerToken", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/jobs", "", "")
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "MISSING_AUTHORIZATION_HEADER", errorCode(t, resp))
		})

		t.Run("ViewerCannotTrigger", func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/suspend", services.RoleViewer, "")
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "INSUFFICIENT_ROLE", errorCode(t, resp))
		})

		t.Run("OperatorCannotRemoveCampaign", func(t *testing.T) {
			status, _ := env.do(t, http.MethodDelete, "/api/v1/campaigns/C1", services.RoleOperator, "")
			assert.Equal(t, http.StatusForbidden, status)
		})

		t.Run("RefreshThenList", func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/refresh", services.RoleOperator, "")
			require.Equal(t, http.StatusOK, status)
			assert.True(t, resp.Success)

			status, resp = env.do(t, http.MethodGet, "/api/v1/campaigns/C1/jobs?page_size=2", services.RoleViewer, "")
			require.Equal(t, http.StatusOK, status)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, float64(4), data["total"])
			assert.Len(t, data["items"], 2)
		})

		t.Run("InvalidStatusFilter", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/jobs?status=sleeping", services.RoleViewer, "")
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		})

		t.Run("AttachValidation", func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/accounts", services.RoleOperator, `{"name":"Page"}`)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		})

		t.Run("UnknownAccountJobKind", func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/accounts/A1/jobs", services.RoleOperator, `{"kind":"posts"}`)
			assert.Equal(t, http.StatusBadRequest, status)
		})

		t.Run("UnknownJob", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/jobs/missing", services.RoleViewer, "")
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, resp))
		})

		t.Run("UnknownCampaign", func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/api/v1/campaigns/C9/refresh", services.RoleOperator, "")
			assert.Equal(t, http.StatusNotFound, status)
		})

		t.Run("NothingToExport", func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/exports", services.RoleOperator, "")
			assert.Equal(t, http.StatusConflict, status)
			assert.Equal(t, "NOTHING_TO_EXPORT", errorCode(t, resp))
		})

		t.Run("SuspendedCampaignRejectsRefresh", func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/campaigns/C1/suspend", services.RoleOperator, "")
			require.Equal(t, http.StatusOK, status)
			assert.True(t, resp.Success)

			status, _ = env.do(t, http.MethodPost, "/api/v1/campaigns/C1/refresh", services.RoleOperator, "")
			assert.Equal(t, http.StatusConflict, status)
		})

		t.Run("AuditTrailRecordsMutations", func(t *testing.T) {
			status, _ := env.do(t, http.MethodGet, "/api/v1/audit", services.RoleOperator, "")
			assert.Equal(t, http.StatusForbidden, status)

			q := url.Values{"action": {"POST /api/v1/campaigns/:id/suspend"}}
			status, resp := env.do(t, http.MethodGet, "/api/v1/audit?"+q.Encode(), services.RoleAdmin, "")
			require.Equal(t, http.StatusOK, status)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, float64(2), data["total"])

			items, ok := data["items"].([]any)
			require.True(t, ok)
			require.Len(t, items, 2)
			latest := items[0].(map[string]any)
			assert.Equal(t, true, latest["success"])
			assert.Equal(t, "C1", latest["campaign_id"])
			assert.Equal(t, "op-operator", latest["operator_id"])
			assert.Equal(t, "operator", latest["role"])
			denied := items[1].(map[string]any)
			assert.Equal(t, false, denied["success"])
			assert.Equal(t, float64(http.StatusForbidden), denied["status_code"])
			assert.Equal(t, "INSUFFICIENT_ROLE", denied["error_code"])
		})

		t.Run("AuditRejectsBadSince", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/audit?since=yesterday", services.RoleAdmin, "")
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		})

		t.Run("UnknownRoute", func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/nowhere", "", "")
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
		})

		return nil
	})
	require.NoError(t, err)
}
