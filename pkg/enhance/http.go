package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPProvider posts requests as JSON to a hosted function.
type HTTPProvider struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the function at url. A nil client
// uses a default one; timeouts come from the caller's context.
func NewHTTPProvider(url, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPProvider{
		url:        url,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return "http"
}

// Enhance sends one request and decodes the response.
func (p *HTTPProvider) Enhance(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, plerrors.NewEnhanceError(plerrors.ErrInternal, p.Name(), fmt.Sprintf("marshal request: %v", err), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, plerrors.NewEnhanceError(plerrors.ErrInternal, p.Name(), fmt.Sprintf("create request: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, plerrors.NewEnhanceError(plerrors.ErrTimeout, p.Name(), "request timeout", ctx.Err())
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, plerrors.NewEnhanceError(plerrors.ErrUnavailable, p.Name(), fmt.Sprintf("request failed: %v", opErr), err)
		}
		return nil, plerrors.ClassifyError(err, p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, plerrors.ClassifyError(fmt.Errorf("read response: %w", err), p.Name())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, plerrors.StatusError(p.Name(), resp.StatusCode, string(respBody))
	}

	return decodeResult(p.Name(), req, respBody)
}
