package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)
	return r
}

func TestListPersonas(t *testing.T) {
	rec := httptest.NewRecorder()
	setupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []persona.Persona
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, persona.Seed(), got)
}

func TestGetPersona(t *testing.T) {
	r := setupRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas/INTERVIEWER_HR", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got persona.Persona
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "interviewer_hr", got.ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas/ghost", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPersonasEmptyStore(t *testing.T) {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(nil)).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas", nil))
	require.JSONEq(t, `[]`, rec.Body.String())
}
