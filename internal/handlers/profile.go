package handlers

import (
	"fmt"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tarhbox/backend/internal/middleware"
	"github.com/tarhbox/backend/internal/models"
	"github.com/tarhbox/backend/internal/services"
	"github.com/tarhbox/backend/internal/storage"
	"github.com/tarhbox/backend/pkg/logger"
	"github.com/tarhbox/backend/pkg/utils"
	"gorm.io/gorm"
)

type ProfileHandler struct {
	DB            *gorm.DB
	Storage       storage.Storage
	Audit         *services.AuditService
	PublicBaseURL string
}

func NewProfileHandler(db *gorm.DB, store storage.Storage, audit *services.AuditService, publicBaseURL string) *ProfileHandler {
	return &ProfileHandler{DB: db, Storage: store, Audit: audit, PublicBaseURL: publicBaseURL}
}

// Update handles PUT /user: a multipart partial profile edit with an
// optional replacement profile picture. Absent fields keep their current
// values; a field that is present but empty overwrites.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if value, ok := formValue(form, "first_name"); ok {
		updates["first_name"] = strings.TrimSpace(value)
	}
	if value, ok := formValue(form, "last_name"); ok {
		updates["last_name"] = strings.TrimSpace(value)
	}
	if value, ok := formValue(form, "username"); ok {
		updates["username"] = strings.TrimSpace(value)
	}
	if value, ok := formValue(form, "email"); ok {
		email := strings.ToLower(strings.TrimSpace(value))
		if email == "" {
			updates["email"] = nil
		} else {
			if _, err := mail.ParseAddress(email); err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid email")
			}
			updates["email"] = email
		}
	}
	if value, ok := formValue(form, "phone_number"); ok {
		phone := strings.TrimSpace(value)
		if len(phone) > 11 {
			return utils.Error(c, fiber.StatusBadRequest, "phone number must be at most 11 digits")
		}
		updates["phone_number"] = phone
	}

	var pictureKey string
	if fileHeader := formFile(form, "profile_picture"); fileHeader != nil {
		name := canonicalFileName(fileHeader.Filename)
		if !isValidFileName(name) {
			return utils.Error(c, fiber.StatusBadRequest, "file name may only contain English letters, digits, dot, dash and underscore")
		}
		if fileHeader.Size > maxUploadSize {
			return utils.Error(c, fiber.StatusBadRequest, "file size must be under 25 MB")
		}

		stream, err := fileHeader.Open()
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
		}
		defer stream.Close()

		pictureKey = fmt.Sprintf("profile/%d-%s", time.Now().UnixMilli(), name)
		contentType := fileHeader.Header.Get("Content-Type")
		if err := h.Storage.Save(c.Context(), pictureKey, stream, fileHeader.Size, contentType); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed storing profile picture")
		}
		updates["profile_picture_url"] = h.PublicBaseURL + "/api/files/" + pictureKey
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		if pictureKey != "" {
			_ = h.Storage.Delete(c.Context(), pictureKey)
		}
		if isUniqueViolation(err) {
			return utils.Error(c, fiber.StatusBadRequest, "username, email or phone number already in use")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "profile_updated", map[string]interface{}{
		"picture_replaced": pictureKey != "",
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "user.profile_update",
		ResourceType: "user",
		ResourceID:   &currentUser.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func formFile(form *multipart.Form, key string) *multipart.FileHeader {
	files, ok := form.File[key]
	if !ok || len(files) == 0 {
		return nil
	}
	return files[0]
}
