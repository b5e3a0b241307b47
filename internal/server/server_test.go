package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenly/unitwise/internal/store/memory"
	"github.com/havenly/unitwise/pkg/logging"
)

const testSeed = `
apartments:
  - ID: apt1
    APT_NAME: Maple Court
    PHONE: "5551234567"
    UNITS: ["unitA", "unitB"]
units:
  - ID: unitA
    TYPE: Studio
    RENT: 950
  - ID: unitB
    TYPE: 1BR
    RENT: 1200
responses:
  - id: resp1
    campaign: fall-2026
    submitted_at: 2026-08-01T10:00:00Z
    payload: '{"ID": "apt1", "PHONE": "555-987-0000", "ID:0": "unitA", "RENT:0": "975"}'
`

func newTestServer(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	st, err := memory.New(memory.WithSeed([]byte(testSeed)))
	require.NoError(t, err)
	return st, New(st, ":0").Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
}

func TestListChangesets(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/campaigns/fall-2026/changesets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool `json:"success"`
		Data    []struct {
			ApartmentID string         `json:"apartmentId"`
			Changes     map[string]any `json:"changes"`
			Units       []struct {
				UnitID  string         `json:"unitId"`
				Changes map[string]any `json:"changes"`
			} `json:"units"`
			PendingDeletions []struct {
				UnitID string `json:"unitId"`
			} `json:"pendingDeletions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	cs := env.Data[0]
	assert.Equal(t, "apt1", cs.ApartmentID)
	assert.Contains(t, cs.Changes, "PHONE")
	require.Len(t, cs.PendingDeletions, 1)
	assert.Equal(t, "unitB", cs.PendingDeletions[0].UnitID)
}

func TestListChangesetsEmptyCampaign(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/campaigns/winter-2026/changesets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestApproveApartmentChange(t *testing.T) {
	st, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/changes/approve", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"slot":        "-",
		"field":       "PHONE",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	apt, _, err := st.Apartment(context.Background(), "apt1")
	require.NoError(t, err)
	assert.Equal(t, "555-987-0000", apt.GetString("PHONE"))
}

func TestApproveUnitChange(t *testing.T) {
	st, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/changes/approve", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"slot":        "idx0",
		"field":       "RENT",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	unit, _, err := st.Unit(context.Background(), "unitA")
	require.NoError(t, err)
	assert.Equal(t, float64(975), unit.Get("RENT"))
}

func TestRejectChangeSuppressesIt(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/changes/reject", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"slot":        "-",
		"field":       "PHONE",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	// A second rejection of the same change 404s since the change no
	// longer reconciles.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/changes/reject", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"slot":        "-",
		"field":       "PHONE",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletionRoundTrip(t *testing.T) {
	st, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/deletions/reject", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"unitId":      "unitB",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Rejected, so the unit survives and the deletion stops reconciling.
	_, ok, err := st.Unit(context.Background(), "unitB")
	require.NoError(t, err)
	assert.True(t, ok)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/deletions/approve", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"unitId":      "unitB",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveDeletion(t *testing.T) {
	st, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/deletions/approve", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "apt1",
		"unitId":      "unitB",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, ok, err := st.Unit(context.Background(), "unitB")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectNotes(t *testing.T) {
	st, err := memory.New(memory.WithSeed([]byte(testSeed)))
	require.NoError(t, err)
	st.AddResponse(memory.SeedResponse{
		ID:          "resp2",
		Campaign:    "notes-2026",
		SubmittedAt: time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
		Payload:     `{"ID": "apt1", "userNotes": "Elevator out until October", "ID:0": "unitA", "ID:1": "unitB"}`,
	})
	h := New(st, ":0").Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/changes/reject", map[string]string{
		"campaign":    "notes-2026",
		"apartmentId": "apt1",
		"slot":        "-",
		"field":       "userNotes",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/campaigns/notes-2026/changesets", nil)
	var env struct {
		Data []any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Empty(t, env.Data)
}

func TestRequestLoggerCarriesThroughContext(t *testing.T) {
	st, err := memory.New(memory.WithSeed([]byte(testSeed)))
	require.NoError(t, err)

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	logger := logging.New(&buf).Level(zerolog.DebugLevel)
	h := New(st, ":0", WithLogger(&logger)).Router()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/campaigns/fall-2026/changesets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	logged := buf.String()
	assert.Contains(t, logged, "Request handled")
	assert.Contains(t, logged, "request_id")
	// The reconciliation pipeline picked the request logger up from the
	// context, so its lines carry the same request id field.
	assert.Contains(t, logged, "Reconciliation complete")
}

func TestMalformedBody(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes/approve", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownApartment(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/changes/approve", map[string]string{
		"campaign":    "fall-2026",
		"apartmentId": "nope",
		"slot":        "-",
		"field":       "PHONE",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
