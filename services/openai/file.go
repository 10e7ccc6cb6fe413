package openai

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"
)

// File represents an uploaded file on the remote API
type File struct {
	ID        string `json:"id"`
	Name      string `json:"filename"`
	Bytes     int    `json:"bytes"`
	Purpose   string `json:"purpose"`
	CreatedAt int64  `json:"created_at"`
}

// VectorStoreFile represents a file attached to a vector store
type VectorStoreFile struct {
	ID            string `json:"id"`
	VectorStoreID string `json:"vector_store_id"`
	Status        string `json:"status"` // in_progress, completed, cancelled, failed
	UsageBytes    int    `json:"usage_bytes"`
	CreatedAt     int64  `json:"created_at"`
	LastError     string `json:"last_error,omitempty"`
}

// VectorStoreFileBatch represents a batch attachment of files to a store
type VectorStoreFileBatch struct {
	ID            string                `json:"id"`
	VectorStoreID string                `json:"vector_store_id"`
	Status        string                `json:"status"`
	FileCounts    VectorStoreFileCounts `json:"file_counts"`
}

// UploadFile uploads file content for assistant retrieval. The returned file
// ID is what gets attached to vector stores.
func (c *Client) UploadFile(ctx context.Context, name string, content []byte) (*File, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("file content is empty")
	}

	file, err := c.sdk.CreateFileBytes(ctx, gopenai.FileBytesRequest{
		Name:    name,
		Bytes:   content,
		Purpose: gopenai.PurposeAssistants,
	})
	if err != nil {
		return nil, normalizeError(err)
	}

	return &File{
		ID:        file.ID,
		Name:      file.FileName,
		Bytes:     file.Bytes,
		Purpose:   file.Purpose,
		CreatedAt: file.CreatedAt,
	}, nil
}

// DeleteFile deletes an uploaded file from the remote account
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if err := c.sdk.DeleteFile(ctx, fileID); err != nil {
		return normalizeError(err)
	}
	return nil
}

// AddFileToVectorStore attaches one uploaded file to a vector store
func (c *Client) AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	file, err := c.sdk.CreateVectorStoreFile(ctx, vectorStoreID, gopenai.VectorStoreFileRequest{
		FileID: fileID,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return vectorStoreFileFromSDK(file), nil
}

// AddFileBatchToVectorStore attaches multiple uploaded files to a vector
// store in one batch operation
func (c *Client) AddFileBatchToVectorStore(ctx context.Context, vectorStoreID string, fileIDs []string) (*VectorStoreFileBatch, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("at least one file ID is required")
	}

	batch, err := c.sdk.CreateVectorStoreFileBatch(ctx, vectorStoreID, gopenai.VectorStoreFileBatchRequest{
		FileIDs: fileIDs,
	})
	if err != nil {
		return nil, normalizeError(err)
	}

	return &VectorStoreFileBatch{
		ID:            batch.ID,
		VectorStoreID: batch.VectorStoreID,
		Status:        batch.Status,
		FileCounts: VectorStoreFileCounts{
			InProgress: batch.FileCounts.InProgress,
			Completed:  batch.FileCounts.Completed,
			Failed:     batch.FileCounts.Failed,
			Cancelled:  batch.FileCounts.Cancelled,
			Total:      batch.FileCounts.Total,
		},
	}, nil
}

// ListVectorStoreFiles lists every file attached to a vector store, following
// has_more cursors up to MaxListPages
func (c *Client) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]VectorStoreFile, error) {
	var files []VectorStoreFile

	limit := 100
	var after *string

	for page := 0; page < MaxListPages; page++ {
		list, err := c.sdk.ListVectorStoreFiles(ctx, vectorStoreID, gopenai.Pagination{
			Limit: &limit,
			After: after,
		})
		if err != nil {
			return nil, normalizeError(err)
		}

		for _, file := range list.VectorStoreFiles {
			files = append(files, *vectorStoreFileFromSDK(file))
		}

		if !list.HasMore || list.LastID == nil {
			break
		}
		after = list.LastID
	}

	return files, nil
}

// RemoveFileFromVectorStore detaches a file from a vector store. The file
// itself stays uploaded until DeleteFile is called.
func (c *Client) RemoveFileFromVectorStore(ctx context.Context, vectorStoreID, fileID string) error {
	if err := c.sdk.DeleteVectorStoreFile(ctx, vectorStoreID, fileID); err != nil {
		return normalizeError(err)
	}
	return nil
}

func vectorStoreFileFromSDK(file gopenai.VectorStoreFile) *VectorStoreFile {
	result := &VectorStoreFile{
		ID:            file.ID,
		VectorStoreID: file.VectorStoreID,
		Status:        file.Status,
		UsageBytes:    file.UsageBytes,
		CreatedAt:     file.CreatedAt,
	}
	return result
}
