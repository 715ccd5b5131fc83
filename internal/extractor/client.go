// Package extractor is the gateway to the external extraction service that
// turns uploaded bank files into raw transactions. The gateway relays the
// service's success or failure verbatim; it performs no business validation
// and never retries.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"budsjett/internal/core"
)

const (
	defaultTimeout  = 60 * time.Second
	extractorsPath  = "/extractors"
	extractPath     = "/extract"
)

// Info describes one available extraction script.
type Info struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	SupportedFormats []string `json:"supportedFormats"`
}

// ExtractionError is the structured failure the extraction service reported:
// an unknown parser, an unreadable file, or the service being unreachable.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

// Client talks to the extraction service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a gateway client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
	}
}

// listResponse mirrors the service's GET /extractors payload.
type listResponse struct {
	Extractors []struct {
		Name             string   `json:"name"`
		Description      string   `json:"description"`
		SupportedFormats []string `json:"supported_formats"`
	} `json:"extractors"`
}

// extractResponse mirrors the service's POST /extract payload.
type extractResponse struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	Transactions  []core.RawTransaction `json:"transactions"`
	ExtractorUsed string                `json:"extractor_used"`
}

// errorResponse mirrors the service's error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

// ListExtractors returns the extraction scripts the service offers.
func (c *Client) ListExtractors(ctx context.Context) ([]Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+extractorsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build extractors request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExtractionError{Reason: fmt.Sprintf("extraction service unavailable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionError{Reason: readDetail(resp)}
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode extractors response: %w", err)
	}

	infos := make([]Info, len(body.Extractors))
	for i, e := range body.Extractors {
		infos[i] = Info{
			ID:               e.Name,
			Description:      e.Description,
			SupportedFormats: e.SupportedFormats,
		}
	}
	return infos, nil
}

// Extract uploads a file and runs the named extractor over it, returning the
// raw transactions the service produced. Any service-side failure comes back
// as an *ExtractionError.
func (c *Client) Extract(ctx context.Context, filename string, file io.Reader, extractorID string) ([]core.RawTransaction, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload into request: %w", err)
	}
	if err := mw.WriteField("extractor", extractorID); err != nil {
		return nil, fmt.Errorf("write extractor field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+extractPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExtractionError{Reason: fmt.Sprintf("extraction service unavailable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionError{Reason: readDetail(resp)}
	}

	var body extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	if !body.Success {
		return nil, &ExtractionError{Reason: body.Message}
	}

	return body.Transactions, nil
}

// readDetail pulls the service's {"detail": ...} error message, falling back
// to the HTTP status when the body is not the expected shape.
func readDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var body errorResponse
		if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
			return body.Detail
		}
	}
	return fmt.Sprintf("extraction service returned %s", resp.Status)
}
