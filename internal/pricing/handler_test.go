package pricing

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

	"tollgrid/internal/logger"
	"tollgrid/pkg/middleware"
	"tollgrid/pkg/ratelimit"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	handler := NewHandler(f.svc, logger.NopLogger())

	router := gin.New()
	tokens := middleware.TokenRoles{
		"operator-token": {middleware.RoleOperator},
		"viewer-token":   {middleware.RoleViewer},
	}
	handler.RegisterRoutes(router, tokens, ratelimit.DefaultConfig())
	return router, f
}

func doRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "no token", token: "", status: http.StatusUnauthorized},
		{name: "unknown token", token: "bogus", status: http.StatusUnauthorized},
		{name: "viewer token", token: "viewer-token", status: http.StatusOK},
		{name: "operator token", token: "operator-token", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, "/api/infrastructure/tollbooths", tt.token, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestViewerCannotWrite(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/infrastructure/tollbooths", "viewer-token",
		`{"id":"TB-NORTH-1","name":"North gate"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTollboothLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/infrastructure/tollbooths", "operator-token",
		`{"id":"TB-NORTH-1","name":"North gate"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate id conflicts.
	w = doRequest(router, http.MethodPost, "/api/infrastructure/tollbooths", "operator-token",
		`{"id":"TB-NORTH-1","name":"North gate again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/infrastructure/tollbooths", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	var booths []Tollbooth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booths))
	require.Len(t, booths, 1)
	assert.Equal(t, "TB-NORTH-1", booths[0].ID)
}

func TestFareCreateAndCalculate(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/infrastructure/fares", "operator-token",
		`{"entry_tollbooth_id":"TB-NORTH-1","exit_tollbooth_id":"TB-SOUTH-9","amount_cents":850}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodGet, "/api/toll/calculate?entry=TB-NORTH-1&exit=TB-SOUTH-9", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	var calc CalculateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &calc))
	assert.Equal(t, 850, calc.AmountCents)
	assert.Equal(t, "EUR", calc.Currency)

	// An unpriced pair is not found rather than priced at zero.
	w = doRequest(router, http.MethodGet, "/api/toll/calculate?entry=TB-X&exit=TB-Y", "viewer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/api/toll/calculate?entry=TB-NORTH-1", "viewer-token", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFareValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/infrastructure/fares", "operator-token",
		`{"entry_tollbooth_id":"TB-NORTH-1","exit_tollbooth_id":"TB-NORTH-1","amount_cents":850}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/infrastructure/fares", "operator-token",
		`{"entry_tollbooth_id":"TB-NORTH-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebtEndpoints(t *testing.T) {
	router, f := newTestRouter(t)
	ctx := context.Background()

	trip, err := f.trips.CreateOpen(ctx, Trip{TelepassID: strPtr("OBU-001"), Plate: "AB123CD", Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, f.trips.Close(ctx, trip.ID, "TB-SOUTH-9", 850, false))
	debt, err := f.debts.Create(ctx, TelepassDebt{TelepassID: "OBU-001", TripID: trip.ID, AmountCents: 850, Currency: "EUR"})
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/payments/telepass/OBU-001/debts", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var debts []TelepassDebt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &debts))
	require.Len(t, debts, 1)
	assert.Equal(t, DebtStatusOpen, debts[0].Status)

	// Unknown telepass id returns an empty list, not an error.
	w = doRequest(router, http.MethodGet, "/api/payments/telepass/OBU-404/debts", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = doRequest(router, http.MethodPost, "/api/payments/debts/"+debt.ID+"/pay", "operator-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Paying twice finds no open debt.
	w = doRequest(router, http.MethodPost, "/api/payments/debts/"+debt.ID+"/pay", "operator-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/api/payments/summary", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary PaymentSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.OpenDebtCents)
	assert.Equal(t, 850, summary.CollectedCents)
}
