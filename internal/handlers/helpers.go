package handlers

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

const maxUploadSize = 25 * 1024 * 1024

// Upload names must survive a round trip through storage keys and
// Content-Disposition headers unmangled, so only plain ASCII names are
// accepted.
var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// canonicalFileName normalizes an uploaded file name to NFC and strips any
// path the client sent along. Browsers may submit decomposed Unicode; the
// stored name and the allowlist check both use the composed form.
func canonicalFileName(name string) string {
	return filepath.Base(norm.NFC.String(strings.TrimSpace(name)))
}

func isValidFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestID").(string); ok {
		return id
	}
	return ""
}

// isUniqueViolation matches duplicate-key failures from both the postgres
// driver and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate key")
}
