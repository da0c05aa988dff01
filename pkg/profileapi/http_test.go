package profileapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkinCoach/config"
	"SkinCoach/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL + "/", Token: "secret", TimeoutSeconds: 2})
	require.NoError(t, err)
	return c
}

func TestHTTPClient_CreateProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/profiles", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req model.CreateProfileRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "Ada", req.FirstName)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","firstName":"Ada","completedSteps":["PERSONAL"]}`))
	})

	p, err := c.CreateProfile(context.Background(), model.CreateProfileRequest{FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []model.StepID{model.StepPersonal}, p.CompletedSteps)
}

func TestHTTPClient_UpdateProfileSendsOnlySetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/profiles/p1", r.URL.Path)

		var raw map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.Len(t, raw, 2)
		assert.Contains(t, raw, "skinTypes")
		assert.Contains(t, raw, "completedSteps")

		_, _ = w.Write([]byte(`{"id":"p1","skinTypes":["Dry"]}`))
	})

	p, err := c.UpdateProfile(context.Background(), "p1", model.ProfileUpdate{
		SkinTypes:      []string{"Dry"},
		CompletedSteps: []model.StepID{model.StepPersonal, model.StepSkinType},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dry"}, p.SkinTypes)
}

func TestHTTPClient_CheckExistenceQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profiles/exists", r.URL.Path)
		assert.Equal(t, "a@b.com", r.URL.Query().Get("email"))
		assert.Equal(t, "07400123456", r.URL.Query().Get("phoneNumber"))
		_, _ = w.Write([]byte(`{"exists":true,"field":"email"}`))
	})

	res, err := c.CheckExistence(context.Background(), "a@b.com", "07400123456")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, "email", res.Field)
}

func TestHTTPClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"flat message", http.StatusBadRequest, `{"message":"Email is invalid"}`, "Email is invalid"},
		{"nested message", http.StatusConflict, `{"error":{"message":"Already exists"}}`, "Already exists"},
		{"string error", http.StatusNotFound, `{"error":"Not found"}`, "Not found"},
		{"plain text", http.StatusBadGateway, `upstream down`, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetProfile(context.Background(), "p1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientOptions{})
	assert.Error(t, err)
}

func resetGlobalClient() {
	apiClient, apiErr, apiOnce = nil, nil, sync.Once{}
}

func TestInit_FailureLeavesNoClient(t *testing.T) {
	saved := config.Cfg
	t.Cleanup(func() {
		config.Cfg = saved
		resetGlobalClient()
	})
	resetGlobalClient()

	config.Cfg = config.Config{}
	require.Error(t, Init())
	assert.True(t, apiClient == nil, "interface must stay nil, not hold a nil *HTTPClient")
	assert.Panics(t, func() { GetClient() })

	resetGlobalClient()
	config.Cfg = config.Config{ProfileAPIBaseURL: "https://profiles.test/v1", ProfileAPITimeoutSeconds: 2}
	require.NoError(t, Init())
	assert.NotNil(t, GetClient())
}

func TestMockClient_PatchSemantics(t *testing.T) {
	m := NewMockClient()
	p, err := m.CreateProfile(context.Background(), model.CreateProfileRequest{FirstName: "Ada", Email: "a@b.com"})
	require.NoError(t, err)

	yes := true
	_, err = m.UpdateProfile(context.Background(), p.ID, model.ProfileUpdate{HasAllergies: &yes})
	require.NoError(t, err)

	got, err := m.GetProfile(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.True(t, got.HasAllergies)
	assert.Equal(t, 1, m.CallCount("update_profile"))

	_, err = m.GetProfile(context.Background(), "missing")
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}
