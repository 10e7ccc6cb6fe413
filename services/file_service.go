package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services/openai"
	"github.com/collabhub/api/services/storage"
	"github.com/collabhub/api/utils/pdfvalidation"
	"gorm.io/gorm"
)

// ErrFileNotFound indicates the requested file does not belong to the project
var ErrFileNotFound = errors.New("file not found")

// FileService handles document ingestion into a project's knowledge base.
// Every upload lands in three places: the remote file store, the project's
// vector store, and the local metadata row. Optionally an archival copy goes
// to object storage so documents remain downloadable after remote teardown.
type FileService struct {
	db       *gorm.DB
	settings *SettingsService
	archive  *storage.Client // nil disables archival

	ClientFactory func(apiKey string) *openai.Client
}

// NewFileService creates a new file service. Pass a nil archive client to
// disable object storage archival.
func NewFileService(db *gorm.DB, settings *SettingsService, archive *storage.Client) *FileService {
	return &FileService{
		db:       db,
		settings: settings,
		archive:  archive,
		ClientFactory: func(apiKey string) *openai.Client {
			return openai.NewClient(openai.Config{APIKey: apiKey})
		},
	}
}

func (s *FileService) client(ctx context.Context) (*openai.Client, error) {
	apiKey, err := s.settings.GetOpenAIAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.ClientFactory(apiKey), nil
}

// loadProjectWithStore fetches a project and requires its vector store to be
// provisioned
func (s *FileService) loadProjectWithStore(ctx context.Context, projectID uint) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).Preload("VectorStore").First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project not found")
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	if project.VectorStoreID == nil || project.VectorStore == nil {
		return nil, ErrAINotReady
	}

	return &project, nil
}

// UploadFile ingests one document into a project's knowledge base and
// returns the local metadata row
func (s *FileService) UploadFile(ctx context.Context, projectID, userID uint, filename string, content []byte) (*model.ProjectFile, error) {
	project, err := s.loadProjectWithStore(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if pdfvalidation.IsPDF(filename) {
		if result := pdfvalidation.ValidatePDF(content, pdfvalidation.DefaultLimits); !result.Valid {
			return nil, fmt.Errorf("invalid PDF: %s", result.Error)
		}
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := client.UploadFile(ctx, filename, content)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	if _, err := client.AddFileToVectorStore(ctx, project.VectorStore.OpenAIVectorStoreID, remote.ID); err != nil {
		// Orphaned upload, remove it so the account does not accumulate
		// unattached files
		if delErr := client.DeleteFile(ctx, remote.ID); delErr != nil {
			log.Printf("FileService: Failed to clean up orphaned file %s: %v", remote.ID, delErr)
		}
		return nil, fmt.Errorf("failed to attach file to vector store: %w", err)
	}

	record := &model.ProjectFile{
		ProjectID:    project.ID,
		UploadedByID: userID,
		OpenAIFileID: remote.ID,
		Name:         filename,
		Size:         int64(len(content)),
		MimeType:     storage.ContentType(filename),
	}

	// Archival failures only cost the download endpoint, never the ingest
	if s.archive != nil {
		key := storage.GenerateKey(project.ID, filename)
		url, archiveErr := s.archive.Upload(ctx, key, content, record.MimeType)
		if archiveErr != nil {
			log.Printf("FileService: Archival failed for %s: %v", filename, archiveErr)
		} else {
			record.StorageKey = key
			record.StorageURL = url
		}
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	s.recordActivity(ctx, userID, model.ActivityTypeFileUpload, record.ID)
	log.Printf("FileService: Uploaded %s to project %d", filename, project.ID)

	return record, nil
}

// FileUpload is one file in a batch upload; batch order is preserved
type FileUpload struct {
	Name    string
	Content []byte
}

// UploadBatch ingests multiple documents, attaching them to the vector store
// in one batch operation. Files that fail the remote upload are skipped and
// reported; the rest proceed.
func (s *FileService) UploadBatch(ctx context.Context, projectID, userID uint, files []FileUpload) ([]model.ProjectFile, []error) {
	project, err := s.loadProjectWithStore(ctx, projectID)
	if err != nil {
		return nil, []error{err}
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, []error{err}
	}

	var uploadErrs []error
	var fileIDs []string
	var records []model.ProjectFile

	for _, upload := range files {
		filename, content := upload.Name, upload.Content
		if pdfvalidation.IsPDF(filename) {
			if result := pdfvalidation.ValidatePDF(content, pdfvalidation.DefaultLimits); !result.Valid {
				uploadErrs = append(uploadErrs, fmt.Errorf("%s: invalid PDF: %s", filename, result.Error))
				continue
			}
		}

		remote, err := client.UploadFile(ctx, filename, content)
		if err != nil {
			uploadErrs = append(uploadErrs, fmt.Errorf("%s: %w", filename, err))
			continue
		}

		record := model.ProjectFile{
			ProjectID:    project.ID,
			UploadedByID: userID,
			OpenAIFileID: remote.ID,
			Name:         filename,
			Size:         int64(len(content)),
			MimeType:     storage.ContentType(filename),
		}

		if s.archive != nil {
			key := storage.GenerateKey(project.ID, filename)
			if url, archiveErr := s.archive.Upload(ctx, key, content, record.MimeType); archiveErr == nil {
				record.StorageKey = key
				record.StorageURL = url
			}
		}

		fileIDs = append(fileIDs, remote.ID)
		records = append(records, record)
	}

	if len(fileIDs) == 0 {
		return nil, uploadErrs
	}

	if _, err := client.AddFileBatchToVectorStore(ctx, project.VectorStore.OpenAIVectorStoreID, fileIDs); err != nil {
		for _, id := range fileIDs {
			if delErr := client.DeleteFile(ctx, id); delErr != nil {
				log.Printf("FileService: Failed to clean up file %s after batch failure: %v", id, delErr)
			}
		}
		return nil, append(uploadErrs, fmt.Errorf("failed to attach batch to vector store: %w", err))
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, append(uploadErrs, fmt.Errorf("failed to save file records: %w", err))
	}

	for i := range records {
		s.recordActivity(ctx, userID, model.ActivityTypeFileUpload, records[i].ID)
	}

	log.Printf("FileService: Batch uploaded %d files to project %d", len(records), project.ID)
	return records, uploadErrs
}

// ListFiles returns the project's file metadata rows, newest first
func (s *FileService) ListFiles(ctx context.Context, projectID uint) ([]model.ProjectFile, error) {
	var files []model.ProjectFile
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// IngestionStatus reports how files in a project's vector store are
// progressing through indexing
type IngestionStatus struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// GetIngestionStatus asks the remote API how far the project's files have
// indexed
func (s *FileService) GetIngestionStatus(ctx context.Context, projectID uint) (*IngestionStatus, error) {
	project, err := s.loadProjectWithStore(ctx, projectID)
	if err != nil {
		return nil, err
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	files, err := client.ListVectorStoreFiles(ctx, project.VectorStore.OpenAIVectorStoreID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector store files: %w", err)
	}

	status := &IngestionStatus{Total: len(files)}
	for _, f := range files {
		switch f.Status {
		case "completed":
			status.Completed++
		case "failed", "cancelled":
			status.Failed++
		default:
			status.InProgress++
		}
	}
	return status, nil
}

// DeleteFile removes a document from the knowledge base. Remote cleanup is
// best effort in three legs: detach from the vector store, delete the remote
// file, delete the archive copy. The local row is always deleted so the
// dashboard never shows a file the user removed.
func (s *FileService) DeleteFile(ctx context.Context, projectID, fileID, userID uint) error {
	var file model.ProjectFile
	if err := s.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", fileID, projectID).
		First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to fetch file: %w", err)
	}

	var project model.Project
	if err := s.db.WithContext(ctx).Preload("VectorStore").First(&project, projectID).Error; err != nil {
		return fmt.Errorf("failed to fetch project: %w", err)
	}

	client, err := s.client(ctx)
	if err == nil {
		if project.VectorStore != nil {
			if err := client.RemoveFileFromVectorStore(ctx, project.VectorStore.OpenAIVectorStoreID, file.OpenAIFileID); err != nil && !openai.IsNotFound(err) {
				log.Printf("FileService: Failed to detach file %s from vector store: %v", file.OpenAIFileID, err)
			}
		}
		if err := client.DeleteFile(ctx, file.OpenAIFileID); err != nil && !openai.IsNotFound(err) {
			log.Printf("FileService: Failed to delete remote file %s: %v", file.OpenAIFileID, err)
		}
	} else {
		log.Printf("FileService: Skipping remote cleanup for file %d: %v", file.ID, err)
	}

	if s.archive != nil && file.StorageKey != "" {
		if err := s.archive.Delete(ctx, file.StorageKey); err != nil {
			log.Printf("FileService: Failed to delete archive copy %s: %v", file.StorageKey, err)
		}
	}

	if err := s.db.WithContext(ctx).Delete(&file).Error; err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	s.recordActivity(ctx, userID, model.ActivityTypeFileDelete, file.ID)
	log.Printf("FileService: Deleted file %d from project %d", file.ID, projectID)
	return nil
}

// DownloadFile streams the archival copy of a document
func (s *FileService) DownloadFile(ctx context.Context, projectID, fileID uint) (*model.ProjectFile, []byte, error) {
	var file model.ProjectFile
	if err := s.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", fileID, projectID).
		First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("failed to fetch file: %w", err)
	}

	if s.archive == nil || file.StorageKey == "" {
		return nil, nil, fmt.Errorf("no archived copy available for file %d", file.ID)
	}

	content, err := s.archive.Download(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download archived file: %w", err)
	}

	return &file, content, nil
}

func (s *FileService) recordActivity(ctx context.Context, userID uint, activityType model.ActivityType, resourceID uint) {
	activity := model.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		ResourceType: "file",
		ResourceID:   resourceID,
	}
	if err := s.db.WithContext(ctx).Create(&activity).Error; err != nil {
		log.Printf("FileService: Failed to record activity: %v", err)
	}
}
