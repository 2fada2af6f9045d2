package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Aidin1998/amlwatch/common/errors"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/api"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/detection"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/scoring"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/service"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/storage"
	"github.com/Aidin1998/amlwatch/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const base = "/v1/compliance/aml"

type testServer struct {
	router *gin.Engine
	store  *storage.ActivityStore
}

func newTestServer(t *testing.T, trades ...testutil.TradeFixture) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := aml.DefaultConfig()
	clock := testutil.Clock(testutil.Now)
	store := storage.NewActivityStore(testutil.NewTestDB(t))
	logger := zap.NewNop()

	engine := detection.NewEngine(testutil.NewStubTradeReader(trades...), cfg.Detection, logger,
		detection.WithClock(clock))
	svc := service.New(service.Deps{
		Detector:    engine,
		Store:       store,
		Scorer:      scoring.NewRiskScorer(store, cfg.Scoring, clock),
		Sars:        reporting.NewSarGenerator(store, aml.NopPublisher{}, clock, logger),
		DedupWindow: cfg.DedupWindow,
		Now:         clock,
		Logger:      logger,
	})

	router := gin.New()
	api.NewHandler(svc, 80, logger).RegisterRoutes(router.Group("/v1"))
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T, status aml.ActivityStatus, score int) *aml.SuspiciousActivity {
	t.Helper()
	a := &aml.SuspiciousActivity{
		ID:            uuid.NewString(),
		UserID:        "u9",
		Reason:        aml.ReasonLargeTransaction,
		Status:        status,
		RiskScore:     score,
		TotalValueUSD: decimal.NewFromInt(12000),
		CreatedAt:     testutil.Now.Add(-time.Hour),
		UpdatedAt:     testutil.Now.Add(-time.Hour),
	}
	require.NoError(t, s.store.Create(context.Background(), a))
	return a
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func structuringTrades() []testutil.TradeFixture {
	return []testutil.TradeFixture{
		testutil.Buy("t1", "u1", 9200, 6*time.Hour),
		testutil.Buy("t2", "u1", 9400, 3*time.Hour),
		testutil.Buy("t3", "u1", 9100, time.Hour),
	}
}

func TestScanUserAndRiskScore(t *testing.T) {
	s := newTestServer(t, structuringTrades()...)

	w := s.do(t, http.MethodPost, base+"/users/u1/scan", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[aml.ScanSummary](t, w)
	assert.Equal(t, "u1", summary.UserID)
	assert.Equal(t, 1, summary.ActivitiesCreated)
	assert.Equal(t, 85, summary.HighestRiskScore)

	w = s.do(t, http.MethodGet, base+"/users/u1/risk-score", "")
	require.Equal(t, http.StatusOK, w.Code)
	score := decode[struct {
		UserID    string `json:"user_id"`
		RiskScore int    `json:"risk_score"`
	}](t, w)
	assert.Equal(t, "u1", score.UserID)
	assert.Equal(t, 85, score.RiskScore)

	w = s.do(t, http.MethodGet, base+"/users/nobody/risk-score", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"risk_score":0`)
}

func TestListActivitiesFilters(t *testing.T) {
	s := newTestServer(t, structuringTrades()...)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/users/u1/scan", "").Code)
	s.seed(t, aml.StatusUnderReview, 60)

	type listResponse struct {
		Activities []aml.SuspiciousActivity `json:"activities"`
		Count      int                      `json:"count"`
	}

	w := s.do(t, http.MethodGet, base+"/activities", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[listResponse](t, w).Count)

	w = s.do(t, http.MethodGet, base+"/activities?status=open&reason=structuring", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[listResponse](t, w)
	require.Len(t, res.Activities, 1)
	assert.Equal(t, aml.ReasonStructuring, res.Activities[0].Reason)
	assert.Equal(t, []string{"t1", "t2", "t3"}, res.Activities[0].RelatedTradeIDs)

	w = s.do(t, http.MethodGet, base+"/activities?min_risk_score=70", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[listResponse](t, w).Count)

	w = s.do(t, http.MethodGet, base+"/activities?user_id=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activities":[],"count":0}`, w.Body.String())
}

func TestListActivitiesRejectsBadQuery(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"unknown status", "status=BOGUS"},
		{"unknown reason", "reason=TAX_EVASION"},
		{"score above range", "min_risk_score=101"},
		{"malformed time", "from=yesterday"},
		{"inverted range", "from=2024-03-15T00:00:00Z&to=2024-03-14T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, base+"/activities?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			pd := decode[errors.ProblemDetails](t, w)
			assert.Equal(t, errors.TypeValidationError, pd.Type)
		})
	}
}

func TestGetActivity(t *testing.T) {
	s := newTestServer(t)
	a := s.seed(t, aml.StatusOpen, 70)

	w := s.do(t, http.MethodGet, base+"/activities/"+a.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[aml.SuspiciousActivity](t, w)
	assert.Equal(t, a.ID, got.ID)
	assert.True(t, got.TotalValueUSD.Equal(decimal.NewFromInt(12000)))

	w = s.do(t, http.MethodGet, base+"/activities/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	pd := decode[errors.ProblemDetails](t, w)
	assert.Equal(t, errors.TypeNotFound, pd.Type)
	assert.Equal(t, base+"/activities/does-not-exist", pd.Instance)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	a := s.seed(t, aml.StatusOpen, 70)
	path := base + "/activities/" + a.ID + "/status"

	w := s.do(t, http.MethodPatch, path, `{"status":"UNDER_REVIEW","reviewer_id":"analyst-7","notes":"<b>checking</b> wires"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[aml.SuspiciousActivity](t, w)
	assert.Equal(t, aml.StatusUnderReview, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "analyst-7", *got.ReviewedBy)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, "checking wires", *got.ReviewNotes)

	t.Run("sar filed is not a manual transition", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, path, `{"status":"SAR_FILED","reviewer_id":"analyst-7"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, errors.TypeInvalidState, decode[errors.ProblemDetails](t, w).Type)
	})

	t.Run("unrecognized status", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, path, `{"status":"CLOSED","reviewer_id":"analyst-7"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("reviewer is required", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, path, `{"status":"DISMISSED"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		pd := decode[errors.ProblemDetails](t, w)
		require.NotEmpty(t, pd.Errors)
		assert.Equal(t, "reviewer_id", pd.Errors[0].Field)
		assert.Equal(t, "required", pd.Errors[0].Code)
	})

	t.Run("unknown activity", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, base+"/activities/missing/status", `{"status":"ESCALATED","reviewer_id":"analyst-7"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGenerateSar(t *testing.T) {
	s := newTestServer(t)
	a := s.seed(t, aml.StatusOpen, 90)
	path := base + "/activities/" + a.ID + "/sar"

	w := s.do(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusCreated, w.Code)
	report := decode[aml.SarReport](t, w)
	assert.Equal(t, a.ID, report.ActivityID)
	assert.Equal(t, reporting.SarReference(a.ID, testutil.Now), report.SarReference)
	assert.True(t, strings.HasPrefix(report.SarReference, "SAR-20240315-"))

	w = s.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, base+"/activities/missing/sar", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutoFile(t *testing.T) {
	s := newTestServer(t)
	high := s.seed(t, aml.StatusOpen, 90)
	s.seed(t, aml.StatusOpen, 75)
	s.seed(t, aml.StatusUnderReview, 95)

	w := s.do(t, http.MethodPost, base+"/sars/auto-file", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[api.AutoFileResponse](t, w)
	assert.Equal(t, 80, res.Threshold)
	assert.Equal(t, 1, res.Eligible)
	assert.Equal(t, 1, res.Filed)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, high.ID, res.Reports[0].ActivityID)

	w = s.do(t, http.MethodPost, base+"/sars/auto-file", `{"threshold":70}`)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[api.AutoFileResponse](t, w)
	assert.Equal(t, 70, res.Threshold)
	assert.Equal(t, 1, res.Filed)

	w = s.do(t, http.MethodPost, base+"/sars/auto-file", `{"threshold":70}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"threshold":70,"eligible":0,"filed":0,"failed":0,"reports":[]}`, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/sars/auto-file", `{"threshold":150}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
