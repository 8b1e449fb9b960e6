package policyeval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/govmarket/market-core/negotiation"
	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
)

var log = golog.Logger("policyeval")

const (
	defaultLLMTimeout = time.Second * 30

	systemPrompt = `You are the pricing desk of a governance-vote seller. ` +
		`Decide whether to accept, reject, or counter the buyer's offer under the seller policy. ` +
		`Respond with a single JSON object: ` +
		`{"decision":"accept"|"reject"|"counter","counterAmount":"<decimal>","reason":"..."}. ` +
		`counterAmount is required only for "counter". Amounts are decimal strings.`
)

// LLMConfig configures the LLM-backed evaluator.
type LLMConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible API.
	Endpoint string
	// Model is the model name passed through to the API.
	Model string
	// APIKey, if set, is sent as a bearer token.
	APIKey string
	// Timeout bounds one evaluation round-trip.
	Timeout time.Duration
}

// LLMEvaluator evaluates offers by asking an OpenAI-compatible chat endpoint
// for a structured verdict.
type LLMEvaluator struct {
	conf   LLMConfig
	client *resty.Client
}

var _ Evaluator = (*LLMEvaluator)(nil)

// NewLLMEvaluator returns an evaluator backed by the configured endpoint.
func NewLLMEvaluator(conf LLMConfig) *LLMEvaluator {
	if conf.Timeout == 0 {
		conf.Timeout = defaultLLMTimeout
	}
	client := resty.New().
		SetBaseURL(conf.Endpoint).
		SetTimeout(conf.Timeout).
		SetHeader("Content-Type", "application/json")
	if conf.APIKey != "" {
		client.SetAuthToken(conf.APIKey)
	}
	return &LLMEvaluator{conf: conf, client: client}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	Decision      string `json:"decision"`
	CounterAmount string `json:"counterAmount,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Evaluate asks the model for a verdict on the offer under the policy.
func (e *LLMEvaluator) Evaluate(ctx context.Context, offer negotiation.Offer, policy string) (negotiation.OfferResponse, error) {
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return negotiation.OfferResponse{}, fmt.Errorf("encoding offer: %v", err)
	}

	req := chatRequest{
		Model: e.conf.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Seller policy:\n%s\n\nBuyer offer:\n%s", policy, offerJSON)},
		},
	}

	// Some OpenAI-compatible servers answer without a JSON content type;
	// force decoding so the result is unmarshaled regardless.
	var res chatResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		ForceContentType("application/json").
		Post("/chat/completions")
	if err != nil {
		return negotiation.OfferResponse{}, fmt.Errorf("calling evaluator model: %v", err)
	}
	if resp.IsError() {
		return negotiation.OfferResponse{}, fmt.Errorf("evaluator model returned status %d", resp.StatusCode())
	}
	if len(res.Choices) == 0 {
		return negotiation.OfferResponse{}, fmt.Errorf("evaluator model returned no choices")
	}

	v, err := parseVerdict(res.Choices[0].Message.Content)
	if err != nil {
		return negotiation.OfferResponse{}, err
	}
	log.Debugf("model verdict for %s offer %s: %s", offer.Proposal.Title, offer.OfferedAmount, v.Decision)
	return v.toResponse()
}

// parseVerdict extracts the verdict JSON object from the model output,
// tolerating surrounding prose or code fences.
func parseVerdict(content string) (verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return verdict{}, fmt.Errorf("no verdict object in model output")
	}
	var v verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return verdict{}, fmt.Errorf("decoding verdict: %v", err)
	}
	return v, nil
}

func (v verdict) toResponse() (negotiation.OfferResponse, error) {
	switch v.Decision {
	case "accept":
		return negotiation.OfferResponse{Accepted: true, Reason: v.Reason}, nil
	case "reject":
		return negotiation.OfferResponse{Accepted: false, RejectionReason: v.Reason}, nil
	case "counter":
		if _, err := decimal.NewFromString(v.CounterAmount); err != nil {
			return negotiation.OfferResponse{}, fmt.Errorf("bad counter amount %q: %v", v.CounterAmount, err)
		}
		return negotiation.OfferResponse{
			Accepted:     false,
			Reason:       v.Reason,
			CounterOffer: v.CounterAmount,
		}, nil
	default:
		return negotiation.OfferResponse{}, fmt.Errorf("unknown decision %q", v.Decision)
	}
}
