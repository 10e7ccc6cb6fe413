package openai

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"
)

// Run statuses reported by the remote API
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCancelling     = "cancelling"
	RunStatusCancelled      = "cancelled"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusExpired        = "expired"
	RunStatusIncomplete     = "incomplete"
)

// Thread represents a remote conversation thread
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// ThreadMessage is a single message in a thread. Content is flattened to the
// first text part since the dashboard only exchanges text.
type ThreadMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // user, assistant
	Content   string `json:"content"`
	RunID     string `json:"run_id,omitempty"`
	CreatedAt int    `json:"created_at"`
}

// Run represents an assistant run on a thread
type Run struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	AssistantID string   `json:"assistant_id"`
	Status      string   `json:"status"`
	Usage       RunUsage `json:"usage"`
	LastError   string   `json:"last_error,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

// RunUsage holds the token counts reported for a completed run
type RunUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IsTerminal reports whether the run has reached a state it cannot leave
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// Succeeded reports whether the run completed normally
func (r *Run) Succeeded() bool {
	return r.Status == RunStatusCompleted
}

// CreateThread creates an empty remote thread
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	thread, err := c.sdk.CreateThread(ctx, gopenai.ThreadRequest{})
	if err != nil {
		return nil, normalizeError(err)
	}
	return &Thread{ID: thread.ID, CreatedAt: thread.CreatedAt}, nil
}

// DeleteThread deletes a remote thread and every message on it
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	_, err := c.sdk.DeleteThread(ctx, threadID)
	if err != nil {
		return normalizeError(err)
	}
	return nil
}

// CreateUserMessage appends a user message to a thread
func (c *Client) CreateUserMessage(ctx context.Context, threadID, content string) (*ThreadMessage, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	message, err := c.sdk.CreateMessage(ctx, threadID, gopenai.MessageRequest{
		Role:    "user",
		Content: content,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return threadMessageFromSDK(message), nil
}

// ListThreadMessages lists messages on a thread, following has_more cursors
// up to MaxListPages. Pass a runID to restrict the listing to one run's
// output, or an empty string for everything.
func (c *Client) ListThreadMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error) {
	var messages []ThreadMessage

	limit := 100
	order := "asc"
	var after *string
	var runFilter *string
	if runID != "" {
		runFilter = &runID
	}

	for page := 0; page < MaxListPages; page++ {
		list, err := c.sdk.ListMessage(ctx, threadID, &limit, &order, after, nil, runFilter)
		if err != nil {
			return nil, normalizeError(err)
		}

		for _, message := range list.Messages {
			messages = append(messages, *threadMessageFromSDK(message))
		}

		if !list.HasMore || list.LastID == nil {
			break
		}
		after = list.LastID
	}

	return messages, nil
}

// CreateRun starts an assistant run on a thread
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	run, err := c.sdk.CreateRun(ctx, threadID, gopenai.RunRequest{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return runFromSDK(run), nil
}

// RetrieveRun fetches the current state of a run
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.sdk.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, normalizeError(err)
	}
	return runFromSDK(run), nil
}

// CancelRun asks the remote API to cancel an in-flight run
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.sdk.CancelRun(ctx, threadID, runID)
	if err != nil {
		return nil, normalizeError(err)
	}
	return runFromSDK(run), nil
}

func threadMessageFromSDK(message gopenai.Message) *ThreadMessage {
	result := &ThreadMessage{
		ID:        message.ID,
		Role:      message.Role,
		CreatedAt: message.CreatedAt,
	}
	if message.RunID != nil {
		result.RunID = *message.RunID
	}
	for _, part := range message.Content {
		if part.Text != nil {
			result.Content = part.Text.Value
			break
		}
	}
	return result
}

func runFromSDK(run gopenai.Run) *Run {
	result := &Run{
		ID:          run.ID,
		ThreadID:    run.ThreadID,
		AssistantID: run.AssistantID,
		Status:      string(run.Status),
		CreatedAt:   run.CreatedAt,
	}
	if run.Usage.TotalTokens > 0 || run.Usage.PromptTokens > 0 {
		result.Usage = RunUsage{
			PromptTokens:     run.Usage.PromptTokens,
			CompletionTokens: run.Usage.CompletionTokens,
			TotalTokens:      run.Usage.TotalTokens,
		}
	}
	if run.LastError != nil {
		result.LastError = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	return result
}
