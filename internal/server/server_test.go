package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/agent/engine"
	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/agent/repo"
	"github.com/tilemart/salescore/internal/agent/tools"
	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/question"
	"github.com/tilemart/salescore/internal/sales/score"
)

type stubRunner struct {
	lastInput model.QueryInput
}

func (r *stubRunner) Invoke(_ context.Context, in model.QueryInput) (*model.TurnOutput, error) {
	r.lastInput = in
	return &model.TurnOutput{
		SessionID: in.SessionID,
		Response:  "Welcome to Tilemart! What project are you working on?",
		Phase:     phase.Greeting,
	}, nil
}

func newTestServer(t *testing.T) (*Server, *stubRunner, *repo.MemoryConversationRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lib, err := question.LoadLibraryFile("")
	require.NoError(t, err)
	rubric, err := score.LoadRubricFile("")
	require.NoError(t, err)
	eng := engine.New(engine.Config{
		Registry:  tools.NewRegistry(tools.NewStaticCatalog(), tools.NewMemoryCustomerStore()),
		Questions: question.NewPolicy(lib),
		Scorer:    score.NewScorer(rubric),
	})

	runner := &stubRunner{}
	store := repo.NewMemoryConversationRepository()
	return New(runner, store, eng), runner, store
}

func TestPostMessage(t *testing.T) {
	srv, runner, _ := newTestServer(t)
	router := srv.Router()

	body := strings.NewReader(`{"customer_id":"cust-1","message":"hi there"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", runner.lastInput.SessionID)
	assert.Equal(t, "cust-1", runner.lastInput.CustomerID)
	assert.Equal(t, "hi there", runner.lastInput.Query)

	var out model.TurnOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "sess-1", out.SessionID)
	assert.NotEmpty(t, out.Response)
}

func TestPostMessageRejectsEmptyBody(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/messages", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionAndScore(t *testing.T) {
	srv, _, store := newTestServer(t)
	router := srv.Router()

	session := model.NewSession("sess-2", "cust-2")
	session.AppendTurn(model.RoleAssistant, "Welcome to Tilemart, thanks for stopping by!")
	require.NoError(t, store.SaveSession(context.Background(), session))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "sess-2", got.ID)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-2/score", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report score.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Contains(t, report.Phases, phase.Greeting)
	assert.Contains(t, report.RedFlags, "dimensions never collected")
}

func TestDeleteSession(t *testing.T) {
	srv, _, store := newTestServer(t)
	router := srv.Router()

	session := model.NewSession("sess-3", "")
	require.NoError(t, store.SaveSession(context.Background(), session))

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err := store.LoadSession(context.Background(), "sess-3")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}
