package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/testutil"
)

func setupConnectionHandler(t *testing.T) (*ConnectionHandler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cs := testutil.NewTestConnectionService(t, db)
	return NewConnectionHandler(cs), db
}

func TestConnectionHandler_Connections(t *testing.T) {
	t.Run("returns a portfolio's connections", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)
		conn := testutil.NewConnection(portfolio.ID).WithBroker(model.BrokerSchwab).Build(t, db)

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/portfolio/"+portfolio.ID+"/connections",
			map[string]string{"uuid": portfolio.ID},
		)
		w := httptest.NewRecorder()

		handler.Connections(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response []ConnectionResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if len(response) != 1 {
			t.Fatalf("Expected 1 connection, got %d", len(response))
		}
		if response[0].ID != conn.ID || response[0].Broker != "schwab" {
			t.Errorf("Expected schwab connection %s, got %+v", conn.ID, response[0])
		}
	})

	t.Run("returns 404 for unknown portfolio", func(t *testing.T) {
		handler, _ := setupConnectionHandler(t)
		unknown := testutil.MakeID()

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/portfolio/"+unknown+"/connections",
			map[string]string{"uuid": unknown},
		)
		w := httptest.NewRecorder()

		handler.Connections(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestConnectionHandler_CreateConnection(t *testing.T) {
	t.Run("links a connection without exposing the token", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPost,
			"/api/portfolio/"+portfolio.ID+"/connections",
			map[string]string{"uuid": portfolio.ID},
			request.CreateConnectionRequest{Broker: "schwab", AccessToken: "secret-token"},
		)
		w := httptest.NewRecorder()

		handler.CreateConnection(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if strings.Contains(w.Body.String(), "secret-token") {
			t.Error("Response body must not contain the access token")
		}

		var response ConnectionResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if response.Status != "connected" {
			t.Errorf("Expected connected status, got %s", response.Status)
		}
	})

	t.Run("returns 400 for an unknown broker", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPost,
			"/api/portfolio/"+portfolio.ID+"/connections",
			map[string]string{"uuid": portfolio.ID},
			request.CreateConnectionRequest{Broker: "robinhood"},
		)
		w := httptest.NewRecorder()

		handler.CreateConnection(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestConnectionHandler_UpdateConnection(t *testing.T) {
	t.Run("disables a connection", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)
		conn := testutil.NewConnection(portfolio.ID).Build(t, db)

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPatch,
			"/api/connection/"+conn.ID,
			map[string]string{"uuid": conn.ID},
			request.UpdateConnectionRequest{Status: "disconnected"},
		)
		w := httptest.NewRecorder()

		handler.UpdateConnection(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response ConnectionResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if response.Status != "disconnected" {
			t.Errorf("Expected disconnected, got %s", response.Status)
		}
	})

	t.Run("returns 404 for unknown connection", func(t *testing.T) {
		handler, _ := setupConnectionHandler(t)
		unknown := testutil.MakeID()

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPatch,
			"/api/connection/"+unknown,
			map[string]string{"uuid": unknown},
			request.UpdateConnectionRequest{Status: "disconnected"},
		)
		w := httptest.NewRecorder()

		handler.UpdateConnection(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestConnectionHandler_ImportRecords(t *testing.T) {
	t.Run("stages records and reports the count", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)
		conn := testutil.NewConnection(portfolio.ID).Build(t, db)

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPost,
			"/api/connection/"+conn.ID+"/records",
			map[string]string{"uuid": conn.ID},
			request.ImportRecordsRequest{
				Records: []request.StagedRecordPayload{
					{Kind: "position", Symbol: "AAPL", Currency: "USD", Quantity: "10", AverageCost: "150"},
					{Kind: "position", Symbol: "MSFT", Currency: "USD", Quantity: "4", AverageCost: "300"},
				},
			},
		)
		w := httptest.NewRecorder()

		handler.ImportRecords(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response map[string]int
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if response["imported"] != 2 {
			t.Errorf("Expected 2 imported, got %d", response["imported"])
		}
		testutil.AssertRowCount(t, db, "staged_record", 2)
	})

	t.Run("returns 400 when importing into an OAuth connection", func(t *testing.T) {
		handler, db := setupConnectionHandler(t)
		portfolio := testutil.NewPortfolio().Build(t, db)
		conn := testutil.NewConnection(portfolio.ID).WithBroker(model.BrokerPlaid).Build(t, db)

		req := testutil.NewRequestWithJSONBody(t,
			http.MethodPost,
			"/api/connection/"+conn.ID+"/records",
			map[string]string{"uuid": conn.ID},
			request.ImportRecordsRequest{
				Records: []request.StagedRecordPayload{
					{Kind: "position", Symbol: "AAPL", Currency: "USD", Quantity: "10", AverageCost: "150"},
				},
			},
		)
		w := httptest.NewRecorder()

		handler.ImportRecords(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}
