// Package docstore pins proposal document bundles to content-addressed
// storage. The storage protocol itself is an external capability; only
// the narrow Pin surface is consumed here.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"rwa-vault-lab/internal/domain"
)

// Store pins a document bundle and returns its content id.
type Store interface {
	Pin(ctx context.Context, docs []domain.Document) (string, error)
}

// HTTPStore pins bundles through a pinning-gateway HTTP API.
type HTTPStore struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPStore creates a pinning client.
func NewHTTPStore(endpoint, token string) *HTTPStore {
	return &HTTPStore{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Compile-time interface check.
var _ Store = (*HTTPStore)(nil)

// Pin uploads the documents as one multipart bundle.
func (s *HTTPStore) Pin(ctx context.Context, docs []domain.Document) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("at least one document is required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, d := range docs {
		part, err := mw.CreateFormFile("file", d.Name)
		if err != nil {
			return "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write([]byte(d.Text)); err != nil {
			return "", fmt.Errorf("write document %s: %w", d.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("create pin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read pin response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pinning gateway status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Hash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal pin response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("pinning gateway returned empty hash")
	}
	return "ipfs://" + result.Hash, nil
}

// StubStore is a fixed-CID Store for tests and offline runs.
type StubStore struct {
	CID string
}

// Pin returns the fixed CID.
func (s *StubStore) Pin(_ context.Context, docs []domain.Document) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("at least one document is required")
	}
	return s.CID, nil
}
