package policyeval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/govmarket/market-core/negotiation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMEvaluator(t *testing.T) {
	t.Parallel()
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"decision":"reject","reason":"policy forbids airdrop proposals"}`,
				}},
			},
		})
	}))
	defer srv.Close()

	e := NewLLMEvaluator(LLMConfig{Endpoint: srv.URL, Model: "test-model"})
	resp, err := e.Evaluate(context.Background(), negotiation.Offer{
		Proposal:      negotiation.Proposal{Title: "Airdrop tokens to all holders"},
		OfferedAmount: "15",
	}, "reject airdrops")
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Contains(t, resp.RejectionReason, "airdrop")

	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[1].Content, "reject airdrops")
	assert.Contains(t, gotReq.Messages[1].Content, "Airdrop tokens")
}

func TestLLMEvaluatorPlainContentType(t *testing.T) {
	t.Parallel()
	// The handler never sets Content-Type, so Go sniffs text/plain; the
	// verdict must still decode.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"decision":"accept","reason":"meets asking price"}`,
				}},
			},
		})
	}))
	defer srv.Close()

	e := NewLLMEvaluator(LLMConfig{Endpoint: srv.URL, Model: "test-model"})
	resp, err := e.Evaluate(context.Background(), negotiation.Offer{OfferedAmount: "20"}, "")
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}

func TestLLMEvaluatorServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewLLMEvaluator(LLMConfig{Endpoint: srv.URL, Model: "test-model"})
	_, err := e.Evaluate(context.Background(), negotiation.Offer{OfferedAmount: "1"}, "")
	require.Error(t, err)
}
