package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sells-group/listing-resolver/pkg/perplexity"
)

type fakePerplexity struct{}

func (fakePerplexity) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return &perplexity.ChatCompletionResponse{}, nil
}

func httptestRecorder(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}
