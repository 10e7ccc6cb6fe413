package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services/openai"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrProjectNotActive indicates the project status forbids new threads
	// and messages
	ErrProjectNotActive = errors.New("project is not active")
	// ErrAccessDenied indicates the user is not a member of the project
	ErrAccessDenied = errors.New("access denied")
	// ErrThreadNotFound indicates the thread does not exist
	ErrThreadNotFound = errors.New("thread not found")
	// ErrRunNotFinished indicates the run is still in progress
	ErrRunNotFinished = errors.New("run has not finished")
)

// ConversationService manages threaded conversations with a project's
// assistant. Each local thread mirrors a remote thread; assistant replies
// arrive asynchronously through run polling, which is also where provider
// token usage is folded into the message, thread and project counters.
type ConversationService struct {
	db       *gorm.DB
	settings *SettingsService

	// One mutex per thread serializes run creation. The remote API rejects
	// a second run while one is active on the same thread.
	threadLocks sync.Map

	ClientFactory func(apiKey string) *openai.Client
}

// NewConversationService creates a new conversation service
func NewConversationService(db *gorm.DB, settings *SettingsService) *ConversationService {
	return &ConversationService{
		db:       db,
		settings: settings,
		ClientFactory: func(apiKey string) *openai.Client {
			return openai.NewClient(openai.Config{APIKey: apiKey})
		},
	}
}

func (s *ConversationService) client(ctx context.Context) (*openai.Client, error) {
	apiKey, err := s.settings.GetOpenAIAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.ClientFactory(apiKey), nil
}

func (s *ConversationService) lockThread(threadID uint) *sync.Mutex {
	lock, _ := s.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// checkProjectAccess verifies the user may touch the project's threads.
// Admins, the project creator and members pass.
func (s *ConversationService) checkProjectAccess(ctx context.Context, project *model.Project, userID uint) error {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return ErrAccessDenied
	}
	if user.Role == model.UserRoleAdmin || project.CreatedByID == userID {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", project.ID, userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if count == 0 {
		return ErrAccessDenied
	}
	return nil
}

// loadThread fetches a thread with its project and verifies access
func (s *ConversationService) loadThread(ctx context.Context, threadID, userID uint) (*model.Thread, error) {
	var thread model.Thread
	if err := s.db.WithContext(ctx).
		Preload("Project").Preload("Assistant").
		First(&thread, threadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}

	if err := s.checkProjectAccess(ctx, &thread.Project, userID); err != nil {
		return nil, err
	}

	return &thread, nil
}

// CreateThread starts a new conversation in a project. The project must be
// active and fully provisioned.
func (s *ConversationService) CreateThread(ctx context.Context, projectID, userID uint, title string) (*model.Thread, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).Preload("Assistant").First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	if err := s.checkProjectAccess(ctx, &project, userID); err != nil {
		return nil, err
	}
	if !project.AcceptsMessages() {
		return nil, ErrProjectNotActive
	}
	if !project.AIReady() || project.Assistant == nil {
		return nil, ErrAINotReady
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := client.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote thread: %w", err)
	}

	if title == "" {
		title = fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2 15:04"))
	}

	thread := &model.Thread{
		ProjectID:      project.ID,
		AssistantID:    *project.AssistantID,
		CreatedByID:    userID,
		OpenAIThreadID: remote.ID,
		Title:          title,
	}
	if err := s.db.WithContext(ctx).Create(thread).Error; err != nil {
		// Local row failed, do not leak the remote thread
		if delErr := client.DeleteThread(ctx, remote.ID); delErr != nil {
			log.Printf("ConversationService: Failed to clean up remote thread %s: %v", remote.ID, delErr)
		}
		return nil, fmt.Errorf("failed to save thread: %w", err)
	}

	s.recordActivity(ctx, userID, model.ActivityTypeThreadCreate, "thread", thread.ID)
	log.Printf("ConversationService: Created thread %d in project %d", thread.ID, project.ID)

	return thread, nil
}

// ListThreads returns a project's threads, newest activity first. When
// mineOnly is set, only threads the user created are returned.
func (s *ConversationService) ListThreads(ctx context.Context, projectID, userID uint, mineOnly bool) ([]model.Thread, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	if err := s.checkProjectAccess(ctx, &project, userID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if mineOnly {
		query = query.Where("created_by_id = ?", userID)
	}

	var threads []model.Thread
	if err := query.
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Find(&threads).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// GetThread returns a thread with its messages in chronological order
func (s *ConversationService) GetThread(ctx context.Context, threadID, userID uint) (*model.Thread, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ID).
		Order("created_at ASC, id ASC").
		Find(&thread.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return thread, nil
}

// ListMessages returns one page of a thread's messages in chronological
// order, plus the total count for pagination
func (s *ConversationService) ListMessages(ctx context.Context, threadID, userID uint, page, limit int) ([]model.Message, int64, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("thread_id = ?", thread.ID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []model.Message
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.ID).
		Order("created_at ASC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, total, nil
}

// RenameThread updates a thread's title
func (s *ConversationService) RenameThread(ctx context.Context, threadID, userID uint, title string) (*model.Thread, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	if err := s.db.WithContext(ctx).Model(thread).Update("title", title).Error; err != nil {
		return nil, fmt.Errorf("failed to rename thread: %w", err)
	}
	thread.Title = title
	return thread, nil
}

// DeleteThread removes a thread locally and remotely. A remote 404 is
// treated as already deleted.
func (s *ConversationService) DeleteThread(ctx context.Context, threadID, userID uint) error {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return err
	}

	client, err := s.client(ctx)
	if err == nil {
		if err := client.DeleteThread(ctx, thread.OpenAIThreadID); err != nil && !openai.IsNotFound(err) {
			log.Printf("ConversationService: Failed to delete remote thread %s: %v", thread.OpenAIThreadID, err)
		}
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	if err := tx.Where("thread_id = ?", thread.ID).Delete(&model.Message{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if err := tx.Delete(&model.Thread{}, thread.ID).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.threadLocks.Delete(thread.ID)
	log.Printf("ConversationService: Deleted thread %d", thread.ID)
	return nil
}

// SendMessageResult reports the stored user message and the run the caller
// should poll for the assistant's reply
type SendMessageResult struct {
	Message *model.Message `json:"message"`
	RunID   string         `json:"run_id"`
	Status  string         `json:"status"`
}

// SendMessage appends a user message to a thread and starts an assistant
// run. Run creation is serialized per thread since the remote API allows
// only one active run per thread.
func (s *ConversationService) SendMessage(ctx context.Context, threadID, userID uint, content string) (*SendMessageResult, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if !thread.Project.AcceptsMessages() {
		return nil, ErrProjectNotActive
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	lock := s.lockThread(thread.ID)
	lock.Lock()
	defer lock.Unlock()

	remoteMsg, err := client.CreateUserMessage(ctx, thread.OpenAIThreadID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote message: %w", err)
	}

	run, err := client.CreateRun(ctx, thread.OpenAIThreadID, thread.Assistant.OpenAIAssistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	now := time.Now()
	message := &model.Message{
		ThreadID:        thread.ID,
		UserID:          &userID,
		Role:            model.MessageRoleUser,
		Content:         content,
		OpenAIMessageID: remoteMsg.ID,
		RunID:           run.ID,
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	if err := tx.Create(message).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	if err := tx.Model(&model.Thread{}).Where("id = ?", thread.ID).Updates(map[string]interface{}{
		"message_count":   gorm.Expr("message_count + 1"),
		"last_message_at": &now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update thread counters: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.recordActivity(ctx, userID, model.ActivityTypeMessageSend, "message", message.ID)

	return &SendMessageResult{
		Message: message,
		RunID:   run.ID,
		Status:  run.Status,
	}, nil
}

// RunStatusResult reports the state of a run and any assistant messages that
// were persisted when it completed
type RunStatusResult struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Completed   bool            `json:"completed"`
	NewMessages []model.Message `json:"new_messages,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// CheckRunStatus polls one run. When the run has completed, the assistant's
// reply is copied into the local store and the run's token usage is added to
// the message, thread and project counters in a single transaction. Repeated
// polls of a finished run are harmless: messages dedupe on their remote ID
// and usage is only applied when a new row is inserted.
func (s *ConversationService) CheckRunStatus(ctx context.Context, threadID uint, runID string, userID uint) (*RunStatusResult, error) {
	thread, err := s.loadThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	run, err := client.RetrieveRun(ctx, thread.OpenAIThreadID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve run: %w", err)
	}

	result := &RunStatusResult{
		RunID:     run.ID,
		Status:    run.Status,
		Completed: run.Succeeded(),
		LastError: run.LastError,
	}

	if !run.Succeeded() {
		return result, nil
	}

	remoteMessages, err := client.ListThreadMessages(ctx, thread.OpenAIThreadID, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run messages: %w", err)
	}

	newMessages, err := s.persistRunOutput(ctx, thread, run, remoteMessages)
	if err != nil {
		return nil, err
	}

	result.NewMessages = newMessages
	return result, nil
}

// persistRunOutput stores the assistant messages produced by a completed run
// and folds the run's usage into the counters, all in one transaction
func (s *ConversationService) persistRunOutput(ctx context.Context, thread *model.Thread, run *openai.Run, remoteMessages []openai.ThreadMessage) ([]model.Message, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	var inserted []model.Message
	for _, remote := range remoteMessages {
		if remote.Role != string(model.MessageRoleAssistant) {
			continue
		}

		message := model.Message{
			ThreadID:         thread.ID,
			Role:             model.MessageRoleAssistant,
			Content:          remote.Content,
			OpenAIMessageID:  remote.ID,
			RunID:            run.ID,
			PromptTokens:     run.Usage.PromptTokens,
			CompletionTokens: run.Usage.CompletionTokens,
			TotalTokens:      run.Usage.TotalTokens,
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "openai_message_id"}},
			DoNothing: true,
		}).Create(&message)
		if res.Error != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to save assistant message: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			inserted = append(inserted, message)
		}
	}

	// Counters only move with fresh rows so re-polling a finished run can
	// never double count
	if len(inserted) > 0 {
		now := time.Now()
		if err := tx.Model(&model.Message{}).
			Where("run_id = ? AND role = ?", run.ID, model.MessageRoleUser).
			Updates(map[string]interface{}{
				"prompt_tokens":     gorm.Expr("prompt_tokens + ?", run.Usage.PromptTokens),
				"completion_tokens": gorm.Expr("completion_tokens + ?", run.Usage.CompletionTokens),
				"total_tokens":      gorm.Expr("total_tokens + ?", run.Usage.TotalTokens),
			}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update originating message usage: %w", err)
		}

		if err := tx.Model(&model.Thread{}).Where("id = ?", thread.ID).Updates(map[string]interface{}{
			"prompt_tokens":     gorm.Expr("prompt_tokens + ?", run.Usage.PromptTokens),
			"completion_tokens": gorm.Expr("completion_tokens + ?", run.Usage.CompletionTokens),
			"total_tokens":      gorm.Expr("total_tokens + ?", run.Usage.TotalTokens),
			"message_count":     gorm.Expr("message_count + ?", len(inserted)),
			"last_message_at":   &now,
		}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update thread usage: %w", err)
		}

		if err := tx.Model(&model.Project{}).Where("id = ?", thread.ProjectID).Updates(map[string]interface{}{
			"prompt_tokens":     gorm.Expr("prompt_tokens + ?", run.Usage.PromptTokens),
			"completion_tokens": gorm.Expr("completion_tokens + ?", run.Usage.CompletionTokens),
			"total_tokens":      gorm.Expr("total_tokens + ?", run.Usage.TotalTokens),
		}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update project usage: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(inserted) > 0 {
		log.Printf("ConversationService: Run %s added %d messages to thread %d (%d tokens)",
			run.ID, len(inserted), thread.ID, run.Usage.TotalTokens)
	}

	return inserted, nil
}

// WaitForRun polls a run until it finishes or maxWait elapses. Intended for
// synchronous callers like the cron reconciler; the HTTP API polls from the
// client side instead.
func (s *ConversationService) WaitForRun(ctx context.Context, threadID uint, runID string, userID uint, interval, maxWait time.Duration) (*RunStatusResult, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	deadline := time.Now().Add(maxWait)
	for {
		result, err := s.CheckRunStatus(ctx, threadID, runID, userID)
		if err != nil {
			return nil, err
		}

		terminal := openai.Run{Status: result.Status}
		if terminal.IsTerminal() {
			return result, nil
		}

		if time.Now().After(deadline) {
			return result, ErrRunNotFinished
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (s *ConversationService) recordActivity(ctx context.Context, userID uint, activityType model.ActivityType, resourceType string, resourceID uint) {
	activity := model.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if err := s.db.WithContext(ctx).Create(&activity).Error; err != nil {
		log.Printf("ConversationService: Failed to record activity: %v", err)
	}
}
