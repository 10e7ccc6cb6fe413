package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/collabhub/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileFixture struct {
	svc     *FileService
	fake    *fakeOpenAI
	user    *model.User
	project *model.Project
}

func newFileFixture(t *testing.T, provision bool) *fileFixture {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")

	db := newTestDB(t)
	fake := newFakeOpenAI(t)

	svc := NewFileService(db, NewSettingsService(db), nil)
	svc.ClientFactory = fake.clientFactory()

	user := createTestUser(t, db, "creator@example.com", model.UserRoleMember)
	project := createTestProject(t, db, user.ID, model.ProjectStatusActive)

	if provision {
		provisionTestProject(t, db, project, "vs_docs", "asst_docs")
		fake.seedRemote("vs_docs", "asst_docs")
	}

	return &fileFixture{svc: svc, fake: fake, user: user, project: project}
}

func TestUploadFileRequiresProvisionedStore(t *testing.T) {
	fx := newFileFixture(t, false)

	_, err := fx.svc.UploadFile(context.Background(), fx.project.ID, fx.user.ID, "notes.txt", []byte("meeting notes"))
	require.ErrorIs(t, err, ErrAINotReady)
}

func TestUploadFileStoresMetadataAndAttaches(t *testing.T) {
	fx := newFileFixture(t, true)

	record, err := fx.svc.UploadFile(context.Background(), fx.project.ID, fx.user.ID, "notes.txt", []byte("meeting notes"))
	require.NoError(t, err)

	assert.Equal(t, fx.project.ID, record.ProjectID)
	assert.Equal(t, fx.user.ID, record.UploadedByID)
	assert.NotEmpty(t, record.OpenAIFileID)
	assert.Equal(t, "notes.txt", record.Name)
	assert.Equal(t, int64(len("meeting notes")), record.Size)
	assert.Equal(t, "text/plain", record.MimeType)
	assert.Empty(t, record.StorageKey)

	assert.Equal(t, 1, fx.fake.attachedFiles("vs_docs"))

	files, err := fx.svc.ListFiles(context.Background(), fx.project.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestUploadFileRejectsInvalidPDF(t *testing.T) {
	fx := newFileFixture(t, true)

	_, err := fx.svc.UploadFile(context.Background(), fx.project.ID, fx.user.ID, "report.pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PDF")

	// Nothing reached the remote account
	assert.Equal(t, 0, fx.fake.requestCount("POST /files"))
}

func TestUploadBatchUsesOneBatchAttachment(t *testing.T) {
	fx := newFileFixture(t, true)

	records, errs := fx.svc.UploadBatch(context.Background(), fx.project.ID, fx.user.ID, []FileUpload{
		{Name: "alpha.txt", Content: []byte("alpha")},
		{Name: "beta.md", Content: []byte("beta")},
		{Name: "gamma.csv", Content: []byte("g,a,m,m,a")},
	})
	require.Empty(t, errs)
	require.Len(t, records, 3)

	// Batch order carries through to the saved rows
	assert.Equal(t, "alpha.txt", records[0].Name)
	assert.Equal(t, "beta.md", records[1].Name)
	assert.Equal(t, "gamma.csv", records[2].Name)

	assert.Equal(t, 1, fx.fake.batchCallCount())
	assert.Equal(t, 3, fx.fake.attachedFiles("vs_docs"))

	var count int64
	require.NoError(t, fx.svc.db.Model(&model.ProjectFile{}).Where("project_id = ?", fx.project.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestUploadBatchCleansUpWhenAttachmentFails(t *testing.T) {
	fx := newFileFixture(t, true)

	fx.fake.fail("POST /vector_stores", http.StatusInternalServerError)

	records, errs := fx.svc.UploadBatch(context.Background(), fx.project.ID, fx.user.ID, []FileUpload{
		{Name: "alpha.txt", Content: []byte("alpha")},
		{Name: "beta.txt", Content: []byte("beta")},
	})
	assert.Nil(t, records)
	require.NotEmpty(t, errs)

	// The orphaned uploads were deleted from the remote account
	assert.Equal(t, 2, fx.fake.requestCount("DELETE /files"))

	var count int64
	require.NoError(t, fx.svc.db.Model(&model.ProjectFile{}).Where("project_id = ?", fx.project.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteFileAlwaysRemovesLocalRow(t *testing.T) {
	fx := newFileFixture(t, true)
	ctx := context.Background()

	record, err := fx.svc.UploadFile(ctx, fx.project.ID, fx.user.ID, "notes.txt", []byte("meeting notes"))
	require.NoError(t, err)

	// Remote cleanup fails, the local row must still go away
	fx.fake.fail("DELETE /files", http.StatusInternalServerError)
	fx.fake.fail("DELETE /vector_stores", http.StatusInternalServerError)

	require.NoError(t, fx.svc.DeleteFile(ctx, fx.project.ID, record.ID, fx.user.ID))

	var count int64
	require.NoError(t, fx.svc.db.Model(&model.ProjectFile{}).Where("id = ?", record.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteFileUnknownID(t *testing.T) {
	fx := newFileFixture(t, true)

	err := fx.svc.DeleteFile(context.Background(), fx.project.ID, 9999, fx.user.ID)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestGetIngestionStatusCountsRemoteFiles(t *testing.T) {
	fx := newFileFixture(t, true)
	ctx := context.Background()

	for _, name := range []string{"one.txt", "two.txt"} {
		_, err := fx.svc.UploadFile(ctx, fx.project.ID, fx.user.ID, name, []byte(name))
		require.NoError(t, err)
	}

	status, err := fx.svc.GetIngestionStatus(ctx, fx.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Completed)
	assert.Zero(t, status.InProgress)
	assert.Zero(t, status.Failed)
}

func TestDownloadFileWithoutArchive(t *testing.T) {
	fx := newFileFixture(t, true)
	ctx := context.Background()

	record, err := fx.svc.UploadFile(ctx, fx.project.ID, fx.user.ID, "notes.txt", []byte("meeting notes"))
	require.NoError(t, err)

	// Archival is disabled, so there is nothing to stream back
	_, _, err = fx.svc.DownloadFile(ctx, fx.project.ID, record.ID)
	require.Error(t, err)
}
