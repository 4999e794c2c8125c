package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidreview/internal/association"
	"pidreview/internal/config"
	"pidreview/internal/datastore"
	"pidreview/pkg/models"
)

type testServer struct {
	controller *Controller
	echo       *echo.Echo
	store      *datastore.SQLiteStore
}

func newTestServer(t *testing.T, requireFull bool) *testServer {
	t.Helper()

	store := datastore.New(":memory:")
	require.NoError(t, store.Open())

	cfg := &config.Config{
		MaxAssociationDistance:  association.DefaultMaxDistance,
		AutosaveInterval:        time.Hour,
		RequireFullVerification: requireFull,
	}

	e := echo.New()
	c := New(e, store, cfg)
	t.Cleanup(func() {
		c.Shutdown()
		_ = store.Close()
	})
	return &testServer{controller: c, echo: e, store: store}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(payload))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedDrawing(t *testing.T, ts *testServer, drawingID string) {
	t.Helper()
	body := map[string]any{
		"detections": []map[string]any{
			{"class": "pump_centrifugal", "score": 0.97, "box": map[string]float64{"x": 100, "y": 150, "w": 60, "h": 80}},
			{"class": "valve_gate", "score": 0.95, "box": map[string]float64{"x": 400, "y": 200, "w": 30, "h": 30}},
		},
		"ocr": []map[string]any{
			{"text": "P-101", "score": 0.95, "box": map[string]float64{"x": 110, "y": 155, "w": 30, "h": 14}},
		},
	}
	rec := ts.request(t, http.MethodPost, "/api/v1/drawings/"+drawingID+"/extract", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func startSession(t *testing.T, ts *testServer, drawingID string) StartValidationResponse {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/drawings/"+drawingID+"/validation/start",
		StartValidationRequest{UserID: "reviewer-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[StartValidationResponse](t, rec)
}

func TestExtractAndStartValidation(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")

	resp := startSession(t, ts, "dwg-1")
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, models.SessionInProgress, resp.State)
	assert.Equal(t, 3, resp.ChecklistProgress.Overall.Total, "two symbols and one tag token")
	assert.Equal(t, 3, resp.ChecklistProgress.Overall.Pending)
}

func TestApplyActionsAndChecklist(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	start := startSession(t, ts, "dwg-1")

	session, ok := ts.controller.Sessions.Get("dwg-1")
	require.True(t, ok)
	snap := session.SnapshotState()
	require.NotEmpty(t, snap.Symbols)
	symbolID := snap.Symbols[0].ID

	rec := ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-1/validation", ApplyActionsRequest{
		Version: start.Version,
		Actions: []models.EditAction{{
			Type:       models.ActionVerify,
			EntityType: models.EntitySymbol,
			EntityID:   symbolID,
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	applied := decode[ApplyActionsResponse](t, rec)
	assert.Equal(t, 1, applied.Applied)
	assert.Greater(t, applied.Version, start.Version)
	assert.Equal(t, 1, applied.ChecklistProgress.Overall.Verified)

	rec = ts.request(t, http.MethodGet, "/api/v1/drawings/dwg-1/validation/checklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[models.ChecklistProgress](t, rec)
	assert.Equal(t, 1, progress.Overall.Verified)
}

func TestApplyActionsStaleVersionConflict(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	start := startSession(t, ts, "dwg-1")

	rec := ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-1/validation", ApplyActionsRequest{
		Version: start.Version - 1,
		Actions: nil,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(start.Version), body["expected_version"])
	assert.Equal(t, float64(start.Version-1), body["actual_version"])
}

func TestApplyActionsUnknownEntity(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	start := startSession(t, ts, "dwg-1")

	rec := ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-1/validation", ApplyActionsRequest{
		Version: start.Version,
		Actions: []models.EditAction{{
			Type:       models.ActionVerify,
			EntityType: models.EntitySymbol,
			EntityID:   "no-such-symbol",
		}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(0), body["applied"])
	assert.Equal(t, "no-such-symbol", body["entity_id"])
}

func TestUndoRedoEndpoints(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	start := startSession(t, ts, "dwg-1")

	session, _ := ts.controller.Sessions.Get("dwg-1")
	symbolID := session.SnapshotState().Symbols[0].ID

	rec := ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-1/validation", ApplyActionsRequest{
		Version: start.Version,
		Actions: []models.EditAction{{
			Type: models.ActionVerify, EntityType: models.EntitySymbol, EntityID: symbolID,
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["stepped"])

	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, true, body["stepped"])

	// Nothing left to redo.
	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/redo", nil)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, false, body["stepped"])
}

func TestCompleteBlockedThenAllowed(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	start := startSession(t, ts, "dwg-1")

	rec := ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/complete", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Verify every pending item, then complete.
	session, _ := ts.controller.Sessions.Get("dwg-1")
	snap := session.SnapshotState()
	var actions []models.EditAction
	for _, sym := range snap.Symbols {
		actions = append(actions, models.EditAction{
			Type: models.ActionVerify, EntityType: models.EntitySymbol, EntityID: sym.ID,
		})
	}
	for _, txt := range snap.Texts {
		actions = append(actions, models.EditAction{
			Type: models.ActionVerify, EntityType: models.EntityText, EntityID: txt.ID,
		})
	}
	rec = ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-1/validation", ApplyActionsRequest{
		Version: start.Version,
		Actions: actions,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPatchSymbol(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	startSession(t, ts, "dwg-1")

	session, _ := ts.controller.Sessions.Get("dwg-1")
	symbolID := session.SnapshotState().Symbols[0].ID

	tag := "P-101A"
	verified := true
	rec := ts.request(t, http.MethodPatch, "/api/v1/symbols/"+symbolID, PatchSymbolRequest{
		TagNumber:  &tag,
		IsVerified: &verified,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[models.DetectedSymbol](t, rec)
	require.NotNil(t, updated.TagNumber)
	assert.Equal(t, "P-101A", *updated.TagNumber)
	assert.Equal(t, models.StatusVerified, updated.VerificationStatus)

	// The patch went through the edit history and is undoable.
	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/validation/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sym, _ := session.Symbol(symbolID)
	assert.Equal(t, models.StatusPending, sym.VerificationStatus)
}

func TestPatchSymbolUnknownID(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.request(t, http.MethodPatch, "/api/v1/symbols/no-such-symbol", PatchSymbolRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSymbol(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")
	startSession(t, ts, "dwg-1")

	rec := ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/symbols", CreateSymbolRequest{
		SymbolClass: models.ClassValveGate,
		BBox:        models.BBox{X: 500, Y: 300, Width: 30, Height: 30},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[models.DetectedSymbol](t, rec)
	assert.Equal(t, models.ClassValveGate, created.SymbolClass)
	assert.Equal(t, 1.0, created.Confidence)
	assert.Equal(t, models.StatusPending, created.VerificationStatus)

	rec = ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/symbols", CreateSymbolRequest{
		SymbolClass: "not_a_class",
		BBox:        models.BBox{X: 0, Y: 0, Width: 10, Height: 10},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractEmptyBatchRejected(t *testing.T) {
	ts := newTestServer(t, true)

	body := map[string]any{
		"detections": []map[string]any{
			{"class": "not_a_class", "score": 0.9, "box": map[string]float64{"x": 0, "y": 0, "w": 10, "h": 10}},
		},
	}
	rec := ts.request(t, http.MethodPost, "/api/v1/drawings/dwg-1/extract", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelExtractionNothingInFlight(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.request(t, http.MethodDelete, "/api/v1/drawings/dwg-1/extract", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyActionsWithoutSession(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.request(t, http.MethodPut, "/api/v1/drawings/dwg-9/validation", ApplyActionsRequest{Version: 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChecklistFromStoredStateWithoutSession(t *testing.T) {
	ts := newTestServer(t, true)
	seedDrawing(t, ts, "dwg-1")

	rec := ts.request(t, http.MethodGet, "/api/v1/drawings/dwg-1/validation/checklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[models.ChecklistProgress](t, rec)
	assert.Equal(t, 3, progress.Overall.Total)
	assert.Equal(t, progress.Overall.Total,
		progress.Overall.Verified+progress.Overall.Flagged+progress.Overall.Pending)
}
