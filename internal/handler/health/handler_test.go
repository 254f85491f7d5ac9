package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type listerFunc func(ctx context.Context) ([]string, error)

func (f listerFunc) ListModels(ctx context.Context) ([]string, error) { return f(ctx) }

var info = Info{
	Provider:      "ollama",
	BaseURL:       "http://ollama.test:11434",
	ChatModel:     "my-custom-llama3",
	FeedbackModel: "llama3:8b",
}

func serve(t *testing.T, lister ModelLister) (*httptest.ResponseRecorder, Report) {
	t.Helper()
	r := chi.NewRouter()
	New(info, lister, zap.NewNop()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return rec, report
}

func TestHealthModelsAvailable(t *testing.T) {
	rec, report := serve(t, listerFunc(func(context.Context) ([]string, error) {
		return []string{"my-custom-llama3:latest", "llama3:8b"}, nil
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", report.Status)
	require.True(t, *report.ChatModelAvailable)
	require.True(t, *report.FeedbackModelAvailable)
	require.Equal(t, "http://ollama.test:11434", report.BaseURL)
}

func TestHealthMissingModel(t *testing.T) {
	rec, report := serve(t, listerFunc(func(context.Context) ([]string, error) {
		return []string{"llama3:8b"}, nil
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "degraded", report.Status)
	require.False(t, *report.ChatModelAvailable)
	require.True(t, *report.FeedbackModelAvailable)
}

func TestHealthUnreachable(t *testing.T) {
	rec, report := serve(t, listerFunc(func(context.Context) ([]string, error) {
		return nil, errors.New("connection refused")
	}))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "unavailable", report.Status)
	require.Equal(t, "connection refused", report.Error)
}

func TestHealthWithoutLister(t *testing.T) {
	rec, report := serve(t, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", report.Status)
	require.Nil(t, report.ChatModelAvailable)
}
