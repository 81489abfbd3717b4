package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/campaign"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/inference"
	"github.com/obsidiansec/personaforge/internal/intel"
	"github.com/obsidiansec/personaforge/internal/persona"
	"github.com/obsidiansec/personaforge/internal/signals"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	bundle := schemas.Bundle{Objects: []schemas.RawObject{
		{
			ID: "G0016", Kind: "group", Name: "APT29",
			Aliases:     []string{"Cozy Bear"},
			Description: "Russian state-sponsored espionage group targeting government networks.",
			Relationships: []schemas.RawRelationship{
				{Kind: schemas.RelUses, TargetID: "T1055"},
				{Kind: schemas.RelUses, TargetID: "T1566"},
			},
		},
		{ID: "T1055", Kind: "technique", Name: "Process Injection", Tactic: "defense-evasion"},
		{ID: "T1566", Kind: "technique", Name: "Phishing", Tactic: "initial-access"},
	}}
	store, err := intel.Load(bundle, zap.NewNop())
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	engine := inference.New(store, cfg.Inference, signals.DefaultTables(), zap.NewNop())
	library := persona.NewLibrary(store, engine, persona.DefaultCuratedTable(), zap.NewNop())
	agent := campaign.NewAgent(store, zap.NewNop())

	s := New(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, library, agent, zap.NewNop())
	srv := httptest.NewServer(s.router())
	t.Cleanup(srv.Close)
	t.Cleanup(http.DefaultClient.CloseIdleConnections)
	return srv
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetPersonaEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	t.Run("resolves by alias", func(t *testing.T) {
		t.Parallel()
		var p schemas.Persona
		code := getJSON(t, srv.URL+"/api/v1/personas/Cozy%20Bear", &p)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "G0016", p.ID)
		assert.Equal(t, schemas.ProvenancePremium, p.Provenance)
	})

	t.Run("unknown name is 404", func(t *testing.T) {
		t.Parallel()
		code := getJSON(t, srv.URL+"/api/v1/personas/NoSuchGroup", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestListPersonasEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	var out struct {
		Count    int                      `json:"count"`
		Personas []schemas.PersonaSummary `json:"personas"`
	}
	code := getJSON(t, srv.URL+"/api/v1/personas", &out)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "APT29", out.Personas[0].Name)
}

func TestCreateCustomEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	t.Run("creates and returns 201", func(t *testing.T) {
		var p schemas.Persona
		code := postJSON(t, srv.URL+"/api/v1/personas/custom", CustomPersonaRequest{
			Name: "Red Team Alpha",
			Base: "APT29",
			Overrides: persona.CustomOverrides{
				Stealth: schemas.StealthNoisy,
			},
		}, &p)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, schemas.ProvenanceCustom, p.Provenance)
		assert.Equal(t, schemas.StealthNoisy, p.Stealth)

		// Duplicate name now conflicts.
		code = postJSON(t, srv.URL+"/api/v1/personas/custom", CustomPersonaRequest{
			Name: "Red Team Alpha", Base: "APT29",
		}, nil)
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("unknown technique is 400", func(t *testing.T) {
		code := postJSON(t, srv.URL+"/api/v1/personas/custom", CustomPersonaRequest{
			Name: "Variant Two",
			Base: "APT29",
			Overrides: persona.CustomOverrides{
				Techniques: []string{"T9999"},
			},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("missing fields is 400", func(t *testing.T) {
		code := postJSON(t, srv.URL+"/api/v1/personas/custom", CustomPersonaRequest{Name: "X"}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestRunCampaignEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	t.Run("runs a simulation", func(t *testing.T) {
		t.Parallel()
		var clog schemas.CampaignLog
		code := postJSON(t, srv.URL+"/api/v1/campaigns", CampaignRequest{
			Persona: "APT29", Scenario: "data_theft", Seed: 42,
		}, &clog)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "G0016", clog.PersonaID)
		assert.EqualValues(t, 42, clog.Seed)
	})

	t.Run("unknown scenario is 400", func(t *testing.T) {
		t.Parallel()
		code := postJSON(t, srv.URL+"/api/v1/campaigns", CampaignRequest{
			Persona: "APT29", Scenario: "tea_party", Seed: 1,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown persona is 404", func(t *testing.T) {
		t.Parallel()
		code := postJSON(t, srv.URL+"/api/v1/campaigns", CampaignRequest{
			Persona: "Nobody", Seed: 1,
		}, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	// Prime the cache, then read the counters back.
	code := getJSON(t, srv.URL+"/api/v1/personas/APT29", nil)
	require.Equal(t, http.StatusOK, code)

	var stats persona.Stats
	code = getJSON(t, srv.URL+"/api/v1/stats", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, stats.Inferred)
}
