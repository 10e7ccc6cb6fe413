package openai

import (
	"context"
	"fmt"
	"log"
	"net/http"

	gopenai "github.com/sashabaranov/go-openai"
)

// VectorStore represents a vector store backing a project knowledge base
type VectorStore struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Status     string                `json:"status"` // expired, in_progress, completed
	UsageBytes int64                 `json:"usage_bytes"`
	FileCounts VectorStoreFileCounts `json:"file_counts"`
	CreatedAt  int64                 `json:"created_at"`
}

// VectorStoreFileCounts summarizes ingestion progress across a store's files
type VectorStoreFileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// CreateVectorStoreRequest represents a request to create a vector store
type CreateVectorStoreRequest struct {
	Name     string            `json:"name"`
	FileIDs  []string          `json:"file_ids,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// createVectorStoreStrategy is one way of reaching the vector-store create
// endpoint. The API surface moved between SDK revisions and beta headers, so
// the client tries each known shape in order until one succeeds.
type createVectorStoreStrategy struct {
	name string
	call func(ctx context.Context, req CreateVectorStoreRequest) (*VectorStore, error)
}

func (c *Client) createStrategies() []createVectorStoreStrategy {
	return []createVectorStoreStrategy{
		{name: "sdk", call: c.createVectorStoreSDK},
		{name: "raw", call: c.createVectorStoreRaw},
		{name: "raw-beta", call: c.createVectorStoreRawBeta},
	}
}

// CreateVectorStore creates a vector store, falling back across known API
// shapes. The first success wins; if every strategy fails, the last error is
// returned so the caller sees the most specific failure.
func (c *Client) CreateVectorStore(ctx context.Context, req CreateVectorStoreRequest) (*VectorStore, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("vector store name is required")
	}

	var lastErr error
	for _, strategy := range c.createStrategies() {
		store, err := strategy.call(ctx, req)
		if err == nil {
			return store, nil
		}
		lastErr = err
		log.Printf("OpenAI client: create vector store via %s failed: %v", strategy.name, err)

		// Auth failures will not improve on a different endpoint shape
		if IsAuthError(err) {
			break
		}
	}

	return nil, fmt.Errorf("all vector store creation strategies failed: %w", lastErr)
}

func (c *Client) createVectorStoreSDK(ctx context.Context, req CreateVectorStoreRequest) (*VectorStore, error) {
	sdkReq := gopenai.VectorStoreRequest{
		Name:    req.Name,
		FileIDs: req.FileIDs,
	}
	if len(req.Metadata) > 0 {
		sdkReq.Metadata = make(map[string]any, len(req.Metadata))
		for k, v := range req.Metadata {
			sdkReq.Metadata[k] = v
		}
	}

	store, err := c.sdk.CreateVectorStore(ctx, sdkReq)
	if err != nil {
		return nil, normalizeError(err)
	}
	return vectorStoreFromSDK(store), nil
}

func (c *Client) createVectorStoreRaw(ctx context.Context, req CreateVectorStoreRequest) (*VectorStore, error) {
	var result VectorStore
	if err := c.doRequest(ctx, http.MethodPost, "/v1/vector_stores", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) createVectorStoreRawBeta(ctx context.Context, req CreateVectorStoreRequest) (*VectorStore, error) {
	var result VectorStore
	if err := c.doRequestBeta(ctx, http.MethodPost, "/v1/vector_stores", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetrieveVectorStore fetches a vector store by its remote ID
func (c *Client) RetrieveVectorStore(ctx context.Context, vectorStoreID string) (*VectorStore, error) {
	store, err := c.sdk.RetrieveVectorStore(ctx, vectorStoreID)
	if err != nil {
		return nil, normalizeError(err)
	}
	return vectorStoreFromSDK(store), nil
}

// DeleteVectorStore deletes a vector store by its remote ID
func (c *Client) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	_, err := c.sdk.DeleteVectorStore(ctx, vectorStoreID)
	if err != nil {
		return normalizeError(err)
	}
	return nil
}

func vectorStoreFromSDK(store gopenai.VectorStore) *VectorStore {
	return &VectorStore{
		ID:         store.ID,
		Name:       store.Name,
		Status:     store.Status,
		UsageBytes: int64(store.UsageBytes),
		FileCounts: VectorStoreFileCounts{
			InProgress: store.FileCounts.InProgress,
			Completed:  store.FileCounts.Completed,
			Failed:     store.FileCounts.Failed,
			Cancelled:  store.FileCounts.Cancelled,
			Total:      store.FileCounts.Total,
		},
		CreatedAt: store.CreatedAt,
	}
}
