package httpkit

import (
	"fmt"
	"strconv"
	"strings"

	"faculty_meetings_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// FormatETag creates a weak ETag from a record version.
func FormatETag(version int) string {
	return fmt.Sprintf(`W/"%d"`, version)
}

// SetETag sets the ETag header for a versioned resource.
func SetETag(c *gin.Context, version int) {
	c.Header("ETag", FormatETag(version))
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("ETag must contain a positive numeric version: %s", etag)
	}
	return v, nil
}

// IfMatchVersion reads the If-Match header. It returns nil when the header is
// absent, which means the write is unconditional.
func IfMatchVersion(c *gin.Context) (*int, error) {
	raw := c.GetHeader("If-Match")
	if raw == "" {
		return nil, nil
	}

	version, err := ParseETag(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid If-Match header: " + err.Error())
	}
	return &version, nil
}
