package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

type applicationServiceMock struct {
	app       *models.Application
	cacheHit  bool
	err       error
	lastID    string
	lastActor models.Actor
	draft     dto.SaveDraftRequest
	submit    dto.SubmitApplicationRequest
	decisions []models.DocumentDecision
	reject    dto.RejectApplicationRequest
}

func (m *applicationServiceMock) Lookup(ctx context.Context, id string, actor models.Actor) (*models.Application, bool, error) {
	m.lastID, m.lastActor = id, actor
	return m.app, m.cacheHit, m.err
}

func (m *applicationServiceMock) ReviewSummary(ctx context.Context, id string, actor models.Actor) (*models.ReviewStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &m.app.ReviewStatus, nil
}

func (m *applicationServiceMock) Validate(ctx context.Context, id string, actor models.Actor) (*service.ValidationResult, error) {
	return &service.ValidationResult{Errors: []string{"missing required document: Aadhar Card"}}, m.err
}

func (m *applicationServiceMock) History(ctx context.Context, id string, actor models.Actor) ([]models.WorkflowHistoryEntry, error) {
	return m.app.WorkflowHistory, m.err
}

func (m *applicationServiceMock) SaveDraft(ctx context.Context, id string, req dto.SaveDraftRequest, actor models.Actor) (*dto.SaveDraftResponse, error) {
	m.lastID, m.lastActor, m.draft = id, actor, req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SaveDraftResponse{Application: m.app, Warnings: []string{}}, nil
}

func (m *applicationServiceMock) Submit(ctx context.Context, id string, req dto.SubmitApplicationRequest, actor models.Actor) (*models.Application, error) {
	m.lastID, m.submit = id, req
	return m.app, m.err
}

func (m *applicationServiceMock) DecideDocuments(ctx context.Context, id string, decisions []models.DocumentDecision, actor models.Actor) (*dto.DocumentDecisionsResponse, error) {
	m.decisions = decisions
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DocumentDecisionsResponse{Application: m.app}, nil
}

func (m *applicationServiceMock) Approve(ctx context.Context, id string, req dto.ApproveApplicationRequest, actor models.Actor) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor models.Actor) (*models.Application, error) {
	m.reject = req
	return m.app, m.err
}

func (m *applicationServiceMock) RequestResubmission(ctx context.Context, id string, req dto.ResubmissionRequest, actor models.Actor) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Withdraw(ctx context.Context, id string, req dto.WithdrawApplicationRequest, actor models.Actor) (*models.Application, error) {
	m.lastID = id
	return m.app, m.err
}

func newTestContext(method, path string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

var (
	studentClaims = &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	staffClaims   = &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestApplicationHandlerCreateDraftAcceptsMapDocuments(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1", Status: models.ApplicationStatusDraft}}
	h := NewApplicationHandler(mock)

	body := []byte(`{"personalDetails":{"name":"Asha"},"documents":{"aadhar_card":{"fileName":"a.pdf","storageLocator":"s3://b/a.pdf","sizeBytes":10}}}`)
	c, w := newTestContext(http.MethodPost, "/applications/draft", body, studentClaims)
	h.CreateDraft(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "", mock.lastID)
	require.Equal(t, "stu-1", mock.lastActor.ID)
	require.Contains(t, mock.draft.Documents.ByType, "aadhar_card")
	require.Equal(t, "Asha", mock.draft.Personal["name"])
}

func TestApplicationHandlerUpdateDraftRejectsBadJSON(t *testing.T) {
	h := NewApplicationHandler(&applicationServiceMock{})
	c, w := newTestContext(http.MethodPut, "/applications/app-1/draft", []byte(`{"documents": 5}`), studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	h.UpdateDraft(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerRequiresClaims(t *testing.T) {
	h := NewApplicationHandler(&applicationServiceMock{})
	c, w := newTestContext(http.MethodGet, "/applications/app-1", nil, nil)
	h.Get(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplicationHandlerGetReportsCacheHit(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1"}, cacheHit: true}
	h := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodGet, "/applications/app-1", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, true, env.Meta["cache_hit"])
	require.Equal(t, "app-1", mock.lastID)
}

func TestApplicationHandlerSubmitMapsErrors(t *testing.T) {
	validation := appErrors.Validation("application is not ready", []string{"missing required document: Aadhar Card"}, nil)
	cases := map[string]struct {
		err    error
		status int
	}{
		"validation":   {validation, http.StatusBadRequest},
		"precondition": {appErrors.Precondition("status", "cannot submit an application in status WITHDRAWN"), http.StatusPreconditionFailed},
		"forbidden":    {appErrors.ErrForbidden, http.StatusForbidden},
		"conflict":     {appErrors.ErrConflict, http.StatusConflict},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewApplicationHandler(&applicationServiceMock{err: tc.err})
			c, w := newTestContext(http.MethodPost, "/applications/app-1/submit", []byte(`{"termsAccepted":true}`), studentClaims)
			h.Submit(c)
			require.Equal(t, tc.status, w.Code)
			require.NotNil(t, decodeEnvelope(t, w).Error)
		})
	}
}

func TestApplicationHandlerSubmitBindsTerms(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1", Status: models.ApplicationStatusUnderReview}}
	h := NewApplicationHandler(mock)
	c, w := newTestContext(http.MethodPost, "/applications/app-1/submit", []byte(`{"termsAccepted":true}`), studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mock.submit.TermsAccepted)
	require.Equal(t, "app-1", mock.lastID)
}

func TestApplicationHandlerDecideDocuments(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1"}}
	h := NewApplicationHandler(mock)
	body := []byte(`{"decisions":[{"documentType":"aadhar_card","status":"REJECTED","remarks":"blurry"}]}`)
	c, w := newTestContext(http.MethodPost, "/applications/app-1/documents/decisions", body, staffClaims)
	h.DecideDocuments(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mock.decisions, 1)
	require.Equal(t, models.DocumentStatusRejected, mock.decisions[0].Status)
}

func TestApplicationHandlerRejectNeedsBody(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1"}}
	h := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodPost, "/applications/app-1/reject", nil, staffClaims)
	h.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodPost, "/applications/app-1/reject", []byte(`{"reason":"incomplete"}`), staffClaims)
	h.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "incomplete", mock.reject.Reason)
}

func TestApplicationHandlerWithdrawWithoutBody(t *testing.T) {
	mock := &applicationServiceMock{app: &models.Application{ID: "app-1", Status: models.ApplicationStatusWithdrawn}}
	h := NewApplicationHandler(mock)
	c, w := newTestContext(http.MethodPost, "/applications/app-1/withdraw", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	h.Withdraw(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "app-1", mock.lastID)
}

func TestApplicationHandlerValidateMeta(t *testing.T) {
	h := NewApplicationHandler(&applicationServiceMock{app: &models.Application{ID: "app-1"}})
	c, w := newTestContext(http.MethodPost, "/applications/app-1/validate", nil, studentClaims)
	h.Validate(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decodeEnvelope(t, w).Meta["valid"])
}
