package handlers

import (
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tarhbox/backend/internal/middleware"
	"github.com/tarhbox/backend/internal/models"
	"github.com/tarhbox/backend/internal/services"
	"github.com/tarhbox/backend/pkg/logger"
	"github.com/tarhbox/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{DB: db, Audit: audit}
}

type registerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if req.Username == "" || req.FirstName == "" || req.LastName == "" || req.Password == "" || req.PhoneNumber == "" {
		return utils.Error(c, fiber.StatusBadRequest, "all fields are required")
	}
	if len(req.PhoneNumber) > 11 {
		return utils.Error(c, fiber.StatusBadRequest, "phone number must be at most 11 digits")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid email")
		}
	}

	var existing models.User
	err := h.DB.First(&existing,
		"username = ? OR phone_number = ? OR (email IS NOT NULL AND email = ?)",
		req.Username, req.PhoneNumber, req.Email,
	).Error
	if err == nil {
		return utils.Error(c, fiber.StatusBadRequest, "username, email or phone number already in use")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: passwordHash,
		IsFirstLogin: true,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return utils.Error(c, fiber.StatusBadRequest, "username, email or phone number already in use")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"username": user.Username,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	if req.Identifier == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identifier and password are required")
	}

	// A wrong identifier and a wrong password produce the same response.
	var user models.User
	if err := h.DB.First(&user,
		"username = ? OR email = ? OR phone_number = ?",
		req.Identifier, req.Identifier, req.Identifier,
	).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"identifier": req.Identifier,
			"ip":         c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"is_online":     true,
		"last_login_at": now,
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating login state")
	}
	user.IsOnline = true
	user.LastLoginAt = &now

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"username": user.Username,
		"ip":       c.IP(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

// Dashboard returns the caller's profile. The first authenticated read
// after registration reports is_first_login=true and flips the flag, so
// the client shows its onboarding exactly once.
func (h *AuthHandler) Dashboard(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot := *user

	if user.IsFirstLogin {
		if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("is_first_login", false).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
		}
	}

	return utils.Success(c, fiber.StatusOK, snapshot)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	// Advisory bookkeeping only: the token stays valid until it expires.
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("is_online", false).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.logout",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	if req.Identifier == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email or phone number is required")
	}

	var user models.User
	if err := h.DB.First(&user,
		"email = ? OR phone_number = ?",
		req.Identifier, req.Identifier,
	).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	resetToken, err := utils.GenerateResetToken(user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating reset token")
	}

	logger.InfoWithUser(user.ID.String(), "password_reset_requested", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"reset_token": resetToken})
}

type resetPasswordRequest struct {
	Identifier  string `json:"identifier"`
	NewPassword string `json:"new_password"`
	ResetToken  string `json:"reset_token"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	if req.Identifier == "" || req.NewPassword == "" || req.ResetToken == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identifier, new password and reset token are required")
	}

	claims, err := utils.ValidateResetToken(req.ResetToken)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired reset token")
	}

	// The token alone is not enough: it must agree with the identifier the
	// caller claims to be resetting.
	var user models.User
	if err := h.DB.First(&user,
		"id = ? AND (email = ? OR phone_number = ?)",
		claims.UserID, req.Identifier, req.Identifier,
	).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.password_reset",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset successful"})
}
