package verification

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/internal/verification/methodology"
)

func newTestRouter(repo *MockRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(newTestService(repo), zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHandler_SubmitVerification(t *testing.T) {
	repo := new(MockRepository)
	method := activeMethod()
	creditID := uuid.New()
	repo.On("CreditExists", mock.Anything, creditID).Return(true, nil)
	repo.On("GetMethod", mock.Anything, method.ID).Return(method, nil)
	repo.On("CreateResult", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("CreateResult", mock.Anything, mock.Anything).Return(ErrDuplicateVerification).Once()
	router := newTestRouter(repo)

	body := map[string]interface{}{
		"credit_id":      creditID,
		"methodology_id": method.ID,
		"validator":      "validator@example.org",
	}

	w := doJSON(router, http.MethodPost, "/api/v1/verifications", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var created VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)

	w = doJSON(router, http.MethodPost, "/api/v1/verifications", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, errorBody(t, w), "already exists")
}

func TestHandler_ErrorMapping(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(newTestRouter(new(MockRepository)), http.MethodPost, "/api/v1/verifications", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doJSON(newTestRouter(new(MockRepository)), http.MethodGet, "/api/v1/verifications/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown verification", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetResult", mock.Anything, mock.Anything).Return(nil, ErrVerificationNotFound)
		w := doJSON(newTestRouter(repo), http.MethodGet, "/api/v1/verifications/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown credit", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("CreditExists", mock.Anything, mock.Anything).Return(false, nil)
		w := doJSON(newTestRouter(repo), http.MethodGet, "/api/v1/verifications/credits/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid transition", func(t *testing.T) {
		repo := new(MockRepository)
		result := resultIn(StatusRejected, uuid.New())
		repo.On("GetResult", mock.Anything, result.ID).Return(result, nil)
		w := doJSON(newTestRouter(repo), http.MethodPost, "/api/v1/verifications/"+result.ID.String()+"/approve",
			ReviewRequest{Reviewer: "r"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid methodology", func(t *testing.T) {
		w := doJSON(newTestRouter(new(MockRepository)), http.MethodPost, "/api/v1/methodologies",
			RegisterMethodologyRequest{Name: "VCS", Type: "vcs", Version: "1.0.0"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_ProcessEvidence(t *testing.T) {
	repo := new(MockRepository)
	result := resultIn(StatusPending, uuid.New())
	files, contents := waterEvidence(result.ID)
	repo.On("GetResult", mock.Anything, result.ID).Return(result, nil)
	repo.On("ListEvidenceFiles", mock.Anything, result.ID).Return(files, nil)
	repo.On("UpdateEvidenceFile", mock.Anything, mock.Anything).Return(nil)
	router := newTestRouter(repo)

	encoded := make(map[string]string, len(contents))
	for id, data := range contents {
		encoded[id.String()] = base64.StdEncoding.EncodeToString(data)
	}

	w := doJSON(router, http.MethodPost, "/api/v1/verifications/"+result.ID.String()+"/evidence/process",
		ProcessEvidenceRequest{Contents: encoded})
	require.Equal(t, http.StatusOK, w.Code)

	var processing evidence.ProcessingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &processing))
	assert.True(t, processing.Processed)
	assert.Equal(t, evidence.GradeA, processing.QualityGrade)

	w = doJSON(router, http.MethodPost, "/api/v1/verifications/"+result.ID.String()+"/evidence/process",
		ProcessEvidenceRequest{Contents: map[string]string{files[0].ID.String(): "%%%"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Methodologies(t *testing.T) {
	repo := new(MockRepository)
	method := activeMethod()
	repo.On("CreateMethod", mock.Anything, mock.Anything).Return(nil)
	repo.On("ListMethods", mock.Anything).Return([]VerificationMethod{*method}, nil)
	repo.On("SetMethodActive", mock.Anything, method.ID, false).Return(nil)
	repo.On("GetMethod", mock.Anything, method.ID).Return(method, nil)
	router := newTestRouter(repo)

	w := doJSON(router, http.MethodPost, "/api/v1/methodologies", RegisterMethodologyRequest{
		Name: "Volumetric Water Benefit Accounting", Type: methodology.TypeVWBA, Version: "2.0.0",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/methodologies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Methodologies []VerificationMethod `json:"methodologies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Methodologies, 1)

	w = doJSON(router, http.MethodPut, "/api/v1/methodologies/"+method.ID.String()+"/active", map[string]bool{"active": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/methodologies/"+method.ID.String()+"/active", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
