package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInstanceNotFound = errors.New("instance not found on gateway")
	ErrInstanceExists   = errors.New("instance already exists on gateway")
)

// Events every instance subscribes its webhook to.
var WebhookEvents = []string{"connection.update", "qrcode.updated", "messages.upsert"}

// GatewayError is a non-2xx answer from the Evolution API.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("evolution %s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// EvolutionClient is a thin client for the Evolution API instance endpoints.
type EvolutionClient struct {
	BaseURL     string
	ApiKey      string
	Integration string
	HTTP        *http.Client
}

func NewEvolutionClient(baseURL, apiKey, integration string, timeout time.Duration) *EvolutionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EvolutionClient{
		BaseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ApiKey:      strings.TrimSpace(apiKey),
		Integration: integration,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

func (c *EvolutionClient) do(ctx context.Context, op, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("apikey", c.ApiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("evolution %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("evolution %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return raw, resp.StatusCode, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.StatusCode, nil
}

// FetchInstance returns the gateway view of one instance.
func (c *EvolutionClient) FetchInstance(ctx context.Context, name string) (*InstanceState, error) {
	raw, status, err := c.do(ctx, "fetch", http.MethodGet, "/instance/fetchInstances?instanceName="+url.QueryEscape(name), nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	states, err := parseFetchedInstances(raw)
	if err != nil {
		return nil, fmt.Errorf("evolution fetch: %w", err)
	}
	if len(states) == 0 {
		return nil, ErrInstanceNotFound
	}
	for _, s := range states {
		if s.Name == name {
			st := s
			return &st, nil
		}
	}
	// some gateway versions ignore the filter and name entries differently
	st := states[0]
	return &st, nil
}

// ListInstances returns every instance known to the gateway.
func (c *EvolutionClient) ListInstances(ctx context.Context) ([]InstanceState, error) {
	raw, _, err := c.do(ctx, "list", http.MethodGet, "/instance/fetchInstances", nil)
	if err != nil {
		return nil, err
	}
	states, err := parseFetchedInstances(raw)
	if err != nil {
		return nil, fmt.Errorf("evolution list: %w", err)
	}
	return states, nil
}

type createInstanceReq struct {
	InstanceName string         `json:"instanceName"`
	QRCode       bool           `json:"qrcode"`
	Integration  string         `json:"integration"`
	Webhook      createWebhooks `json:"webhook"`
}

type createWebhooks struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// CreateInstance registers a new session with its webhook subscription.
// A gateway answer saying the name is taken yields ErrInstanceExists.
func (c *EvolutionClient) CreateInstance(ctx context.Context, name, webhookURL string, events []string) error {
	integration := c.Integration
	if integration == "" {
		integration = "WHATSAPP-BAILEYS"
	}
	if len(events) == 0 {
		events = WebhookEvents
	}

	raw, _, err := c.do(ctx, "create", http.MethodPost, "/instance/create", createInstanceReq{
		InstanceName: name,
		QRCode:       false,
		Integration:  integration,
		Webhook:      createWebhooks{URL: webhookURL, Events: events},
	})
	if err != nil {
		var gerr *GatewayError
		if errors.As(err, &gerr) && isAlreadyExists(raw) {
			return ErrInstanceExists
		}
		return err
	}
	return nil
}

func isAlreadyExists(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "already exists") || strings.Contains(s, "already in use")
}

// Connect asks the gateway for a pairing QR. An empty string means none is ready yet.
func (c *EvolutionClient) Connect(ctx context.Context, name string) (string, error) {
	raw, _, err := c.do(ctx, "connect", http.MethodGet, "/instance/connect/"+url.PathEscape(name), nil)
	if err != nil {
		return "", err
	}
	return parseConnectQR(raw), nil
}

// DeleteInstance removes the session. Failures are logged and reported as false.
func (c *EvolutionClient) DeleteInstance(ctx context.Context, name string) bool {
	_, _, err := c.do(ctx, "delete", http.MethodDelete, "/instance/delete/"+url.PathEscape(name), nil)
	if err != nil {
		zap.L().Warn("evolution delete failed", zap.String("instance", name), zap.Error(err))
		return false
	}
	return true
}
