package services

import (
	"context"
	"testing"
	"time"

	"github.com/collabhub/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	svc     *ConversationService
	fake    *fakeOpenAI
	user    *model.User
	project *model.Project
}

func newConversationFixture(t *testing.T, provision bool) *conversationFixture {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")

	db := newTestDB(t)
	fake := newFakeOpenAI(t)

	svc := NewConversationService(db, NewSettingsService(db))
	svc.ClientFactory = fake.clientFactory()

	user := createTestUser(t, db, "creator@example.com", model.UserRoleMember)
	project := createTestProject(t, db, user.ID, model.ProjectStatusActive)

	if provision {
		provisionTestProject(t, db, project, "vs_live", "asst_live")
		fake.seedRemote("vs_live", "asst_live")
	}

	return &conversationFixture{svc: svc, fake: fake, user: user, project: project}
}

func TestCreateThreadRequiresProvisionedProject(t *testing.T) {
	fx := newConversationFixture(t, false)

	_, err := fx.svc.CreateThread(context.Background(), fx.project.ID, fx.user.ID, "Kickoff")
	require.ErrorIs(t, err, ErrAINotReady)
}

func TestCreateThreadUnknownProject(t *testing.T) {
	fx := newConversationFixture(t, false)

	_, err := fx.svc.CreateThread(context.Background(), 9999, fx.user.ID, "Kickoff")
	require.ErrorIs(t, err, ErrProjectNotFound)

	_, err = fx.svc.ListThreads(context.Background(), 9999, fx.user.ID, false)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCreateThreadRejectsInactiveProject(t *testing.T) {
	fx := newConversationFixture(t, true)
	require.NoError(t, fx.svc.db.Model(fx.project).Update("status", model.ProjectStatusArchived).Error)

	_, err := fx.svc.CreateThread(context.Background(), fx.project.ID, fx.user.ID, "Kickoff")
	require.ErrorIs(t, err, ErrProjectNotActive)
}

func TestCreateThreadDeniesNonMembers(t *testing.T) {
	fx := newConversationFixture(t, true)
	outsider := createTestUser(t, fx.svc.db, "outsider@example.com", model.UserRoleMember)

	_, err := fx.svc.CreateThread(context.Background(), fx.project.ID, outsider.ID, "Kickoff")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestCreateThreadAllowsAdmins(t *testing.T) {
	fx := newConversationFixture(t, true)
	admin := createTestUser(t, fx.svc.db, "admin@example.com", model.UserRoleAdmin)

	thread, err := fx.svc.CreateThread(context.Background(), fx.project.ID, admin.ID, "Admin thread")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, thread.CreatedByID)
	assert.NotEmpty(t, thread.OpenAIThreadID)
}

func TestSendMessageAndRunLifecycle(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "What does the design doc say?")
	require.NoError(t, err)
	require.NotEmpty(t, sent.RunID)
	assert.Equal(t, model.MessageRoleUser, sent.Message.Role)

	// The run has not finished, so a poll reports it pending
	status, err := fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)
	assert.False(t, status.Completed)
	assert.Empty(t, status.NewMessages)

	fx.fake.completeRun(sent.RunID, "The doc proposes a phased rollout.", openaiUsage(10, 20, 30))

	status, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)
	assert.True(t, status.Completed)
	require.Len(t, status.NewMessages, 1)
	assert.Equal(t, model.MessageRoleAssistant, status.NewMessages[0].Role)
	assert.Equal(t, "The doc proposes a phased rollout.", status.NewMessages[0].Content)
	assert.Nil(t, status.NewMessages[0].UserID)

	var reloaded model.Thread
	require.NoError(t, fx.svc.db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, 10, reloaded.PromptTokens)
	assert.Equal(t, 20, reloaded.CompletionTokens)
	assert.Equal(t, 30, reloaded.TotalTokens)
	assert.Equal(t, 2, reloaded.MessageCount)
	require.NotNil(t, reloaded.LastMessageAt)

	var project model.Project
	require.NoError(t, fx.svc.db.First(&project, fx.project.ID).Error)
	assert.Equal(t, 30, project.TotalTokens)
}

func TestRunUsageRecordedOnOriginatingUserMessage(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "How many milestones?")
	require.NoError(t, err)
	fx.fake.completeRun(sent.RunID, "Three.", openaiUsage(10, 20, 30))

	_, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)

	var userMsg model.Message
	require.NoError(t, fx.svc.db.
		Where("run_id = ? AND role = ?", sent.RunID, model.MessageRoleUser).
		First(&userMsg).Error)
	assert.Equal(t, 10, userMsg.PromptTokens)
	assert.Equal(t, 20, userMsg.CompletionTokens)
	assert.Equal(t, 30, userMsg.TotalTokens)

	// Re-polling the finished run leaves the user row untouched
	_, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)
	require.NoError(t, fx.svc.db.First(&userMsg, userMsg.ID).Error)
	assert.Equal(t, 30, userMsg.TotalTokens)
}

func TestRepeatedRunPollsDoNotDoubleCount(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Summarize the onboarding doc")
	require.NoError(t, err)
	fx.fake.completeRun(sent.RunID, "It covers three milestones.", openaiUsage(8, 12, 20))

	first, err := fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)
	require.Len(t, first.NewMessages, 1)

	// Polling the finished run again must insert nothing and move no counters
	second, err := fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)
	assert.Empty(t, second.NewMessages)

	var count int64
	require.NoError(t, fx.svc.db.Model(&model.Message{}).Where("thread_id = ?", thread.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var reloaded model.Thread
	require.NoError(t, fx.svc.db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, 20, reloaded.TotalTokens)
	assert.Equal(t, 2, reloaded.MessageCount)
}

func TestTokenUsageAccumulatesAcrossRuns(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	for i, usage := range []struct{ prompt, completion, total int }{
		{10, 20, 30},
		{5, 7, 12},
	} {
		sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Question")
		require.NoError(t, err, "run %d", i)
		fx.fake.completeRun(sent.RunID, "Answer", openaiUsage(usage.prompt, usage.completion, usage.total))
		_, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
		require.NoError(t, err, "run %d", i)
	}

	var reloaded model.Thread
	require.NoError(t, fx.svc.db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, 15, reloaded.PromptTokens)
	assert.Equal(t, 27, reloaded.CompletionTokens)
	assert.Equal(t, 42, reloaded.TotalTokens)

	var project model.Project
	require.NoError(t, fx.svc.db.First(&project, fx.project.ID).Error)
	assert.Equal(t, 15, project.PromptTokens)
	assert.Equal(t, 27, project.CompletionTokens)
	assert.Equal(t, 42, project.TotalTokens)
}

func TestListMessagesPaginates(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	// Two completed runs leave four messages on the thread
	for i := 0; i < 2; i++ {
		sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Question")
		require.NoError(t, err, "run %d", i)
		fx.fake.completeRun(sent.RunID, "Answer", openaiUsage(1, 1, 2))
		_, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
		require.NoError(t, err, "run %d", i)
	}

	first, total, err := fx.svc.ListMessages(ctx, thread.ID, fx.user.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, first, 3)
	assert.Equal(t, model.MessageRoleUser, first[0].Role)

	second, total, err := fx.svc.ListMessages(ctx, thread.ID, fx.user.ID, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, second, 1)

	// Out-of-range values fall back to sane defaults
	all, _, err := fx.svc.ListMessages(ctx, thread.ID, fx.user.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSendMessageRejectsInactiveProject(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	require.NoError(t, fx.svc.db.Model(&model.Project{}).Where("id = ?", fx.project.ID).
		Update("status", model.ProjectStatusCompleted).Error)

	_, err = fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Still there?")
	require.ErrorIs(t, err, ErrProjectNotActive)
}

func TestWaitForRunTimesOut(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Long question")
	require.NoError(t, err)

	// The fake never advances the run past queued
	result, err := fx.svc.WaitForRun(ctx, thread.ID, sent.RunID, fx.user.ID, 5*time.Millisecond, 25*time.Millisecond)
	require.ErrorIs(t, err, ErrRunNotFinished)
	require.NotNil(t, result)
	assert.Equal(t, "queued", result.Status)
}

func TestDeleteThreadRemovesLocalAndRemoteState(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Kickoff")
	require.NoError(t, err)

	sent, err := fx.svc.SendMessage(ctx, thread.ID, fx.user.ID, "Hello")
	require.NoError(t, err)
	fx.fake.completeRun(sent.RunID, "Hi", openaiUsage(1, 2, 3))
	_, err = fx.svc.CheckRunStatus(ctx, thread.ID, sent.RunID, fx.user.ID)
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteThread(ctx, thread.ID, fx.user.ID))

	var threadCount, messageCount int64
	require.NoError(t, fx.svc.db.Model(&model.Thread{}).Where("id = ?", thread.ID).Count(&threadCount).Error)
	require.NoError(t, fx.svc.db.Model(&model.Message{}).Where("thread_id = ?", thread.ID).Count(&messageCount).Error)
	assert.Zero(t, threadCount)
	assert.Zero(t, messageCount)

	_, err = fx.svc.GetThread(ctx, thread.ID, fx.user.ID)
	require.ErrorIs(t, err, ErrThreadNotFound)
}

func TestDeleteThreadToleratesMissingRemote(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	// A local row whose remote thread was already deleted out of band
	thread := &model.Thread{
		ProjectID:      fx.project.ID,
		AssistantID:    *fx.project.AssistantID,
		CreatedByID:    fx.user.ID,
		OpenAIThreadID: "thread_gone",
		Title:          "Orphan",
	}
	require.NoError(t, fx.svc.db.Create(thread).Error)

	require.NoError(t, fx.svc.DeleteThread(ctx, thread.ID, fx.user.ID))
}

func TestListThreadsFiltersByCreator(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	other := createTestUser(t, fx.svc.db, "teammate@example.com", model.UserRoleMember)
	require.NoError(t, fx.svc.db.Create(&model.ProjectMember{
		ProjectID: fx.project.ID,
		UserID:    other.ID,
		AddedByID: fx.user.ID,
	}).Error)

	_, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Mine")
	require.NoError(t, err)
	_, err = fx.svc.CreateThread(ctx, fx.project.ID, other.ID, "Theirs")
	require.NoError(t, err)

	all, err := fx.svc.ListThreads(ctx, fx.project.ID, fx.user.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := fx.svc.ListThreads(ctx, fx.project.ID, fx.user.ID, true)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)
}

func TestRenameThread(t *testing.T) {
	fx := newConversationFixture(t, true)
	ctx := context.Background()

	thread, err := fx.svc.CreateThread(ctx, fx.project.ID, fx.user.ID, "Old title")
	require.NoError(t, err)

	renamed, err := fx.svc.RenameThread(ctx, thread.ID, fx.user.ID, "New title")
	require.NoError(t, err)
	assert.Equal(t, "New title", renamed.Title)

	_, err = fx.svc.RenameThread(ctx, thread.ID, fx.user.ID, "")
	require.Error(t, err)
}
