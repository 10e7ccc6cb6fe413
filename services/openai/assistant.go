package openai

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"
)

// Assistant represents a project's configured assistant
type Assistant struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Model          string   `json:"model"`
	Instructions   string   `json:"instructions"`
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
	CreatedAt      int64    `json:"created_at"`
}

// CreateAssistantRequest represents a request to create an assistant
type CreateAssistantRequest struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	Instructions  string `json:"instructions"`
	VectorStoreID string `json:"vector_store_id,omitempty"`
}

// CreateAssistant creates an assistant. When a vector store ID is given the
// assistant is created with the file_search tool bound to that store, which
// is what makes project uploads retrievable from conversations.
func (c *Client) CreateAssistant(ctx context.Context, req CreateAssistantRequest) (*Assistant, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("assistant model is required")
	}

	sdkReq := gopenai.AssistantRequest{
		Model:        req.Model,
		Name:         &req.Name,
		Instructions: &req.Instructions,
	}

	if req.VectorStoreID != "" {
		sdkReq.Tools = []gopenai.AssistantTool{
			{Type: gopenai.AssistantToolTypeFileSearch},
		}
		sdkReq.ToolResources = &gopenai.AssistantToolResource{
			FileSearch: &gopenai.AssistantToolFileSearch{
				VectorStoreIDs: []string{req.VectorStoreID},
			},
		}
	}

	assistant, err := c.sdk.CreateAssistant(ctx, sdkReq)
	if err != nil {
		return nil, normalizeError(err)
	}

	return assistantFromSDK(assistant), nil
}

// RetrieveAssistant fetches an assistant by its remote ID
func (c *Client) RetrieveAssistant(ctx context.Context, assistantID string) (*Assistant, error) {
	assistant, err := c.sdk.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return nil, normalizeError(err)
	}
	return assistantFromSDK(assistant), nil
}

// UpdateAssistantInstructions rewrites an assistant's instructions in place
func (c *Client) UpdateAssistantInstructions(ctx context.Context, assistantID, instructions string) (*Assistant, error) {
	assistant, err := c.sdk.ModifyAssistant(ctx, assistantID, gopenai.AssistantRequest{
		Instructions: &instructions,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return assistantFromSDK(assistant), nil
}

// DeleteAssistant deletes an assistant by its remote ID
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	_, err := c.sdk.DeleteAssistant(ctx, assistantID)
	if err != nil {
		return normalizeError(err)
	}
	return nil
}

func assistantFromSDK(assistant gopenai.Assistant) *Assistant {
	result := &Assistant{
		ID:        assistant.ID,
		Model:     assistant.Model,
		CreatedAt: assistant.CreatedAt,
	}
	if assistant.Name != nil {
		result.Name = *assistant.Name
	}
	if assistant.Instructions != nil {
		result.Instructions = *assistant.Instructions
	}
	if assistant.ToolResources != nil && assistant.ToolResources.FileSearch != nil {
		result.VectorStoreIDs = assistant.ToolResources.FileSearch.VectorStoreIDs
	}
	return result
}
