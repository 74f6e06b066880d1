package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flexprice/flexbill/internal/api/cron"
	"github.com/flexprice/flexbill/internal/api/dto"
	v1 "github.com/flexprice/flexbill/internal/api/v1"
	"github.com/flexprice/flexbill/internal/auth"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/idempotency"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/testutil"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

const (
	testAPIKey  = "fb_test_api_key"
	testCronKey = "fb_test_cron_key"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router   *gin.Engine
	provider auth.Provider
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.SetupApp()

	cfg := s.GetConfig()
	cfg.Auth.Secret = "router-test-secret"
	cfg.Auth.APIKeys = map[string]string{auth.HashAPIKey(testAPIKey): testutil.TestTenantID}
	cfg.Auth.CronKey = auth.HashAPIKey(testCronKey)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	stores := s.GetStores()
	params := service.ServiceParams{
		Logger:              s.GetLogger(),
		Config:              cfg,
		DB:                  s.GetDB(),
		AppRepo:             stores.AppRepo,
		ConnectionRepo:      stores.ConnectionRepo,
		CustomerRepo:        stores.CustomerRepo,
		PlanRepo:            stores.PlanRepo,
		SubRepo:             stores.SubscriptionRepo,
		InvoiceRepo:         stores.InvoiceRepo,
		InvoiceSequenceRepo: stores.InvoiceSequenceRepo,
		PaymentRepo:         stores.PaymentRepo,
		WebhookLogRepo:      stores.WebhookLogRepo,
		DeliveryRepo:        stores.DeliveryRepo,
		UsageRepo:           stores.UsageRepo,
		CleanupRepo:         stores.CleanupRepo,
		IntegrationFactory:  s.GetIntegrationFactory(),
		EventPublisher:      s.GetDispatcher(),
		EncryptionService:   s.GetEncryptionService(),
		IdempotencyGen:      idempotency.NewGenerator(),
		Metrics:             s.GetMetrics(),
		Clock:               s.GetNow,
	}

	log := s.GetLogger()
	handlers := Handlers{
		Health:       v1.NewHealthHandler(log),
		Customer:     v1.NewCustomerHandler(service.NewCustomerService(params), log),
		Plan:         v1.NewPlanHandler(service.NewPlanService(params), log),
		Subscription: v1.NewSubscriptionHandler(service.NewSubscriptionService(params), log),
		Invoice:      v1.NewInvoiceHandler(service.NewInvoiceService(params), log),
		Payment:      v1.NewPaymentHandler(service.NewPaymentService(params), log),
		Events:       v1.NewEventsHandler(service.NewUsageService(params), log),
		Settings:     v1.NewSettingsHandler(service.NewSettingsService(params), log),
		Connection:   v1.NewConnectionHandler(service.NewConnectionService(params), log),
		Webhook: v1.NewWebhookHandler(
			service.NewReconciler(params),
			service.NewWebhookDeliveryService(s.GetDispatcher(), log),
			log,
		),
		CronJobs: cron.NewJobHandler(service.NewJobService(params, s.GetDispatcher()), log),
	}

	s.provider = auth.NewProvider(cfg)
	s.router = NewRouter(handlers, cfg, log, s.provider, s.GetMetrics(), nil)
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func apiKey() map[string]string {
	return map[string]string{types.HeaderAPIKey: testAPIKey}
}

func (s *RouterSuite) TestHealthAndMetricsArePublic() {
	w := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())

	w = s.do(http.MethodGet, "/metrics", nil, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestTenantRoutesRequireAuth() {
	w := s.do(http.MethodGet, "/v1/customers/cus_missing", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/customers/cus_missing", nil, map[string]string{types.HeaderAPIKey: "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/customers/cus_missing", nil, map[string]string{types.HeaderAuthorization: "Token abc"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/customers/cus_missing", nil, map[string]string{types.HeaderAuthorization: "Bearer not-a-jwt"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestCreateAndGetCustomerWithAPIKey() {
	w := s.do(http.MethodPost, "/v1/customers", dto.CreateCustomerRequest{
		ExternalID: "acme",
		Name:       "Acme",
		Email:      "billing@acme.test",
	}, apiKey())
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	s.Equal("acme", created["external_id"])
	id, _ := created["id"].(string)
	s.Require().NotEmpty(id)

	w = s.do(http.MethodGet, "/v1/customers/"+id, nil, apiKey())
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/customers/external/acme", nil, apiKey())
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestBearerTokenScopesToTenant() {
	token, err := s.provider.GenerateToken("usr_1", testutil.TestTenantID, 0)
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/v1/customers", dto.CreateCustomerRequest{ExternalID: "globex"}, map[string]string{
		types.HeaderAuthorization: "Bearer " + token,
	})
	s.Equal(http.StatusCreated, w.Code, w.Body.String())

	cust, err := s.GetStores().CustomerRepo.GetByExternalID(s.GetContext(), "globex")
	s.Require().NoError(err)
	s.Equal(testutil.TestTenantID, cust.TenantID)
}

func (s *RouterSuite) TestErrorResponseShape() {
	w := s.do(http.MethodPost, "/v1/customers", map[string]any{"name": "no external id"}, apiKey())
	s.Equal(http.StatusBadRequest, w.Code)

	var resp ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	s.Equal("Request validation failed", resp.Error.Display)
	s.Contains(resp.Error.Details, "ExternalID")
	s.Empty(resp.Error.InternalError)

	w = s.do(http.MethodGet, "/v1/customers/cus_missing", nil, apiKey())
	s.Equal(http.StatusNotFound, w.Code)
	resp = ierr.ErrorResponse{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	s.NotEmpty(resp.Error.Display)
}

func (s *RouterSuite) TestCronRequiresCronKey() {
	w := s.do(http.MethodPost, "/v1/cron/renewal-due", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	// a tenant key does not open the cross-tenant triggers
	w = s.do(http.MethodPost, "/v1/cron/renewal-due", nil, apiKey())
	s.Equal(http.StatusUnauthorized, w.Code)

	cronKey := map[string]string{types.HeaderAPIKey: testCronKey}
	w = s.do(http.MethodPost, "/v1/cron/renewal-due", nil, cronKey)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.JobRunResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(types.JobRenewalDue, resp.Job)
	s.Equal(1, resp.Tenants)

	w = s.do(http.MethodPost, "/v1/cron/not-a-job", nil, cronKey)
	s.Equal(http.StatusNotFound, w.Code)
}
