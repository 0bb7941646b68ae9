package handlers

import (
	"fmt"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tarhbox/backend/internal/middleware"
	"github.com/tarhbox/backend/internal/models"
	"github.com/tarhbox/backend/internal/services"
	"github.com/tarhbox/backend/internal/storage"
	"github.com/tarhbox/backend/pkg/logger"
	"github.com/tarhbox/backend/pkg/utils"
	"gorm.io/gorm"
)

// Declared content types accepted for the editable mother source.
var allowedMotherTypes = map[string]bool{
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"image/vnd.adobe.photoshop":                                                 true,
	// Illustrator and other vector exports declare postscript.
	"application/postscript": true,
}

// Declared content types accepted for the distributable user file.
var allowedUserTypes = map[string]bool{
	"application/pdf":               true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

type DocumentsHandler struct {
	DB            *gorm.DB
	Storage       storage.Storage
	Audit         *services.AuditService
	PublicBaseURL string
}

func NewDocumentsHandler(db *gorm.DB, store storage.Storage, audit *services.AuditService, publicBaseURL string) *DocumentsHandler {
	return &DocumentsHandler{DB: db, Storage: store, Audit: audit, PublicBaseURL: publicBaseURL}
}

// Upload accepts a mother/user file pair plus project metadata and records
// both halves under a fresh per-owner pair id. All validation runs before
// anything is stored, so a rejected request leaves nothing behind.
func (h *DocumentsHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	projectName := strings.TrimSpace(c.FormValue("project_name"))
	projectType := strings.TrimSpace(c.FormValue("project_type"))
	if projectName == "" || projectType == "" {
		return utils.Error(c, fiber.StatusBadRequest, "project_name and project_type are required")
	}

	motherFile, motherErr := c.FormFile("mother_file")
	userFile, userErr := c.FormFile("user_file")
	if motherErr != nil || userErr != nil {
		return utils.Error(c, fiber.StatusBadRequest, "both mother and user files are required")
	}

	motherName := canonicalFileName(motherFile.Filename)
	userName := canonicalFileName(userFile.Filename)
	if !isValidFileName(motherName) || !isValidFileName(userName) {
		return utils.Error(c, fiber.StatusBadRequest, "file name may only contain English letters, digits, dot, dash and underscore")
	}

	if motherFile.Size > maxUploadSize || userFile.Size > maxUploadSize {
		return utils.Error(c, fiber.StatusBadRequest, "file size must be under 25 MB")
	}

	if !allowedMotherTypes[motherFile.Header.Get("Content-Type")] {
		return utils.Error(c, fiber.StatusBadRequest, "mother file must be a Word, PowerPoint, Photoshop or Illustrator document")
	}
	if !allowedUserTypes[userFile.Header.Get("Content-Type")] {
		return utils.Error(c, fiber.StatusBadRequest, "user file must be a PDF, PowerPoint or an image (jpg, png, gif)")
	}

	uploadedAt := time.Now().UnixMilli()
	motherKey := fmt.Sprintf("documents/mother/%d-%s", uploadedAt, motherName)
	userKey := fmt.Sprintf("documents/user/%d-%s", uploadedAt, userName)

	if err := h.saveUpload(c, motherFile, motherKey); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing mother file")
	}
	if err := h.saveUpload(c, userFile, userKey); err != nil {
		_ = h.Storage.Delete(c.Context(), motherKey)
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing user file")
	}

	pairID, err := h.insertPair(currentUser.ID, projectName, projectType, pairFiles{
		motherName: motherName,
		motherKey:  motherKey,
		userName:   userName,
		userKey:    userKey,
	})
	if err != nil {
		_ = h.Storage.Delete(c.Context(), motherKey)
		_ = h.Storage.Delete(c.Context(), userKey)
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording documents")
	}

	logger.InfoWithUser(currentUser.ID.String(), "documents_uploaded", map[string]interface{}{
		"pair_id":      pairID,
		"project_name": projectName,
		"project_type": projectType,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "document.upload",
		ResourceType: "document",
		Details: map[string]interface{}{
			"pair_id":      pairID,
			"project_name": projectName,
			"project_type": projectType,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"pair_id":      pairID,
		"project_name": projectName,
		"project_type": projectType,
	})
}

func (h *DocumentsHandler) saveUpload(c *fiber.Ctx, fileHeader *multipart.FileHeader, key string) error {
	stream, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer stream.Close()

	return h.Storage.Save(c.Context(), key, stream, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
}

type pairFiles struct {
	motherName string
	motherKey  string
	userName   string
	userKey    string
}

// insertPair allocates the next pair id for the owner and writes both rows
// in one transaction. The composite unique index on (user_id, pair_id,
// role) turns a concurrent allocation of the same id into a constraint
// failure, which is retried with a fresh read instead of surfacing a
// duplicated pair.
func (h *DocumentsHandler) insertPair(ownerID uuid.UUID, projectName, projectType string, files pairFiles) (int, error) {
	var pairID int
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		err = h.DB.Transaction(func(tx *gorm.DB) error {
			var maxPair int64
			if err := tx.Model(&models.Document{}).
				Where("user_id = ?", ownerID).
				Select("COALESCE(MAX(pair_id), 0)").
				Scan(&maxPair).Error; err != nil {
				return err
			}
			pairID = int(maxPair) + 1

			mother := models.Document{
				UserID:      ownerID,
				FileName:    files.motherName,
				FilePath:    h.PublicBaseURL + "/api/files/" + files.motherKey,
				StorageKey:  files.motherKey,
				Role:        models.DocumentRoleMother,
				PairID:      pairID,
				ProjectName: projectName,
				ProjectType: projectType,
			}
			if err := tx.Create(&mother).Error; err != nil {
				return err
			}

			user := models.Document{
				UserID:      ownerID,
				FileName:    files.userName,
				FilePath:    h.PublicBaseURL + "/api/files/" + files.userKey,
				StorageKey:  files.userKey,
				Role:        models.DocumentRoleUser,
				PairID:      pairID,
				ProjectName: projectName,
				ProjectType: projectType,
			}
			return tx.Create(&user).Error
		})
		if err == nil {
			return pairID, nil
		}
		if !isUniqueViolation(err) {
			return 0, err
		}
	}

	return 0, err
}

type documentSummary struct {
	ID         uuid.UUID `json:"id"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"file_path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type documentPair struct {
	Username    string           `json:"username"`
	ProjectName string           `json:"project_name"`
	ProjectType string           `json:"project_type"`
	Mother      *documentSummary `json:"mother,omitempty"`
	User        *documentSummary `json:"user,omitempty"`
}

// List returns the caller's documents grouped by pair id. The grouping is
// one ordered read aggregated in memory; incomplete pairs (a half that
// never got its sibling) are still returned with the missing role absent.
func (h *DocumentsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var documents []models.Document
	if err := h.DB.
		Where("user_id = ?", currentUser.ID).
		Order("pair_id, role").
		Find(&documents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading documents")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"pairs": groupByPair(documents, currentUser.Username),
	})
}

func groupByPair(documents []models.Document, username string) map[string]*documentPair {
	pairs := make(map[string]*documentPair)

	for _, doc := range documents {
		key := strconv.Itoa(doc.PairID)
		pair, ok := pairs[key]
		if !ok {
			pair = &documentPair{
				Username:    username,
				ProjectName: doc.ProjectName,
				ProjectType: doc.ProjectType,
			}
			pairs[key] = pair
		}

		summary := &documentSummary{
			ID:         doc.ID,
			FileName:   doc.FileName,
			FilePath:   doc.FilePath,
			UploadedAt: doc.UploadedAt,
		}
		switch doc.Role {
		case models.DocumentRoleMother:
			pair.Mother = summary
		case models.DocumentRoleUser:
			pair.User = summary
		}
	}

	return pairs
}

type browseItem struct {
	ID                uuid.UUID `json:"id"`
	FileName          string    `json:"file_name"`
	FilePath          string    `json:"file_path"`
	ProjectName       string    `json:"project_name"`
	ProjectType       string    `json:"project_type"`
	UploadedAt        time.Time `json:"uploaded_at"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
}

// BrowseByProjectType is the category gallery: every user's distributable
// files for one project type, newest first. Deliberately not filtered by
// owner; mother sources are never included.
func (h *DocumentsHandler) BrowseByProjectType(c *fiber.Ctx) error {
	raw := c.Params("projectType")
	projectType, err := url.QueryUnescape(raw)
	if err != nil {
		projectType = raw
	}
	projectType = strings.TrimSpace(projectType)
	if projectType == "" {
		return utils.Error(c, fiber.StatusBadRequest, "project type is required")
	}

	items := []browseItem{}
	if err := h.DB.
		Table("documents").
		Select("documents.id, documents.file_name, documents.file_path, documents.project_name, documents.project_type, documents.uploaded_at, users.username, users.profile_picture_url").
		Joins("JOIN users ON users.id = documents.user_id").
		Where("documents.role = ? AND TRIM(documents.project_type) = ?", models.DocumentRoleUser, projectType).
		Order("documents.uploaded_at DESC").
		Scan(&items).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading files")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"files": items})
}
