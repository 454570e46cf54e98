package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/engine"
	"github.com/spreadpilot/spreadpilot/pkg/storage/storagemock"
	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// testSettings returns a fully valid hourly-mode settings object.
func testSettings() types.Settings {
	day := types.DaySettings{
		ChargeWindowCount:      6,
		ExpensiveWindowCount:   3,
		CheapPercentile:        25,
		ExpensivePercentile:    25,
		MinSpreadPct:           30,
		DischargeSpreadPct:     30,
		AggressiveSpreadPct:    60,
		MinPriceDifference:     0.05,
		PriceOverrideThreshold: 0.15,
	}
	return types.Settings{
		AutomationEnabled:      true,
		WindowDuration:         types.WindowDuration1Hour,
		RoundTripEfficiencyPct: 85,
		ChargePowerW:           800,
		DischargePowerW:        800,
		Today:                  day,
		Tomorrow:               day,
	}
}

func jsonBody(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func newTestServer(mockS *storagemock.MockDatabase) *Server {
	return &Server{
		engine:        engine.New(time.Minute, nil),
		storage:       mockS,
		serverName:    "test",
		retentionDays: 7,
		location:      time.UTC,
	}
}

func TestSettings(t *testing.T) {
	t.Run("Get Settings", func(t *testing.T) {
		mockS := &storagemock.MockDatabase{}
		mockS.On("GetSettings", mock.Anything).Return(testSettings(), types.CurrentSettingsVersion, nil)
		srv := newTestServer(mockS)

		req := httptest.NewRequest("GET", "/api/settings", nil)
		w := httptest.NewRecorder()

		srv.handleGetSettings(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"chargeWindowCount":6`)
	})

	t.Run("Get Settings - Migrates Old Version", func(t *testing.T) {
		mockS := &storagemock.MockDatabase{}
		// empty settings at version 0 pick up every default
		mockS.On("GetSettings", mock.Anything).Return(types.Settings{}, 0, nil)
		mockS.On("SetSettings", mock.Anything, mock.MatchedBy(func(s types.Settings) bool {
			return s.Today.ChargeWindowCount == 6 && s.RoundTripEfficiencyPct == 85 &&
				s.WindowDuration == types.WindowDuration15Min
		}), types.CurrentSettingsVersion).Return(nil)
		srv := newTestServer(mockS)

		req := httptest.NewRequest("GET", "/api/settings", nil)
		w := httptest.NewRecorder()

		srv.handleGetSettings(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"cheapPercentile":25`)
		mockS.AssertExpectations(t)
	})

	t.Run("Update Settings - Validation Error", func(t *testing.T) {
		mockS := &storagemock.MockDatabase{}
		srv := newTestServer(mockS)

		body := `{"windowDuration":"1_hour","roundTripEfficiencyPct":120}`
		req := httptest.NewRequest("PUT", "/api/settings", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.handleUpdateSettings(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), "round-trip efficiency")

		body = `{"windowDuration":"30_minutes","roundTripEfficiencyPct":85}`
		req = httptest.NewRequest("PUT", "/api/settings", strings.NewReader(body))
		w = httptest.NewRecorder()

		srv.handleUpdateSettings(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("Update Settings - Success", func(t *testing.T) {
		mockS := &storagemock.MockDatabase{}
		srv := newTestServer(mockS)

		mockS.On("SetSettings", mock.Anything, mock.MatchedBy(func(s types.Settings) bool {
			return s.Today.ChargeWindowCount == 4 && s.AutomationEnabled
		}), types.CurrentSettingsVersion).Return(nil)

		s := testSettings()
		s.Today.ChargeWindowCount = 4
		body, err := jsonBody(s)
		assert.NoError(t, err)
		req := httptest.NewRequest("PUT", "/api/settings", strings.NewReader(body))
		w := httptest.NewRecorder()

		srv.handleUpdateSettings(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		mockS.AssertExpectations(t)
	})

	t.Run("Rotate", func(t *testing.T) {
		mockS := &storagemock.MockDatabase{}
		s := testSettings()
		s.Tomorrow.ChargeWindowCount = 8
		mockS.On("GetSettings", mock.Anything).Return(s, types.CurrentSettingsVersion, nil)
		mockS.On("SetSettings", mock.Anything, mock.MatchedBy(func(got types.Settings) bool {
			return got.Today.ChargeWindowCount == 8 && got.Tomorrow.ChargeWindowCount == 8
		}), types.CurrentSettingsVersion).Return(nil)
		srv := newTestServer(mockS)

		req := httptest.NewRequest("POST", "/api/rotate", nil)
		w := httptest.NewRecorder()

		srv.handleRotate(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		mockS.AssertExpectations(t)
	})
}
