package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/sentiscope/internal/logger"
)

// KPICount is the number of KPI scores returned per text.
const KPICount = 6

// ErrClassifierDisabled is returned when no classifier endpoint is configured.
var ErrClassifierDisabled = errors.New("classifier not configured")

// Node is a category the classifier matches texts against.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Classification is the per-text verdict of the remote classifier.
type Classification struct {
	Text       string    `json:"text,omitempty"`
	Label      string    `json:"label"`
	Score      float64   `json:"score"`
	NodeID     string    `json:"nodeId"`
	Confidence float64   `json:"confidence"`
	KPIs       []float64 `json:"kpis"`
}

type classifyRequest struct {
	Texts []string `json:"texts"`
	Nodes []Node   `json:"nodes"`
}

type classifyResponse struct {
	Results []Classification `json:"results"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ClassifierConfig holds the remote classifier endpoint settings.
type ClassifierConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ClassifierClient forwards harvested texts to the remote classification
// service. It only transports and validates; scoring happens remotely.
type ClassifierClient struct {
	client   *resty.Client
	endpoint string
}

// NewClassifierClient creates a classifier client.
// Parameters:
//   - cfg: endpoint, API key and timeout; an empty BaseURL yields a client
//     whose Classify always returns ErrClassifierDisabled.
// Returns:
//   - *ClassifierClient: initialized client.
func NewClassifierClient(cfg ClassifierConfig) *ClassifierClient {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	endpoint := ""
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/classify"
	}
	return &ClassifierClient{client: client, endpoint: endpoint}
}

// Enabled reports whether an endpoint is configured.
func (c *ClassifierClient) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Classify sends texts and nodes to the classifier.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - texts: clean, deduplicated texts (see CorpusTexts).
//   - nodes: categories to match against.
// Returns:
//   - []Classification: one verdict per text, in input order.
//   - error: non-nil on transport failure or a structurally invalid response.
func (c *ClassifierClient) Classify(ctx context.Context, texts []string, nodes []Node) ([]Classification, error) {
	if !c.Enabled() {
		return nil, ErrClassifierDisabled
	}
	if len(texts) == 0 {
		return []Classification{}, nil
	}
	if nodes == nil {
		nodes = []Node{}
	}

	start := time.Now()
	var resp classifyResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{Texts: texts, Nodes: nodes}).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	if httpResp.IsError() {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("classifier returned HTTP %d: %s", httpResp.StatusCode(), msg)
	}

	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("classifier returned %d results for %d texts", len(resp.Results), len(texts))
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		if err := validateClassification(r); err != nil {
			return nil, fmt.Errorf("classifier result %d: %w", i, err)
		}
		r.Text = texts[i]
	}

	logger.With(logger.Fields{"nodes": len(nodes)}).
		WithCount(len(texts)).
		WithDuration(time.Since(start)).
		Info(ctx, "Corpus classified")
	return resp.Results, nil
}

func validateClassification(r *Classification) error {
	if r.Score < -1 || r.Score > 1 {
		return fmt.Errorf("score %v out of [-1,1]", r.Score)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", r.Confidence)
	}
	if len(r.KPIs) != KPICount {
		return fmt.Errorf("expected %d kpis, got %d", KPICount, len(r.KPIs))
	}
	for j, k := range r.KPIs {
		if k < -1 || k > 1 {
			return fmt.Errorf("kpi %d value %v out of [-1,1]", j, k)
		}
	}
	return nil
}
