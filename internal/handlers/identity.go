package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sentinel/pkg/apperrors"
)

// Identity headers supplied by the edge gateway. They are trusted: the
// gateway authenticates the caller before these services see a request.
const (
	HeaderTenantID = "X-Tenant-Id"
	HeaderUserID   = "X-User-Id"
)

// tenantID extracts and validates the tenant header.
func tenantID(c *gin.Context) (string, error) {
	return identityHeader(c, HeaderTenantID, "tenant id")
}

// userID extracts and validates the user header.
func userID(c *gin.Context) (string, error) {
	return identityHeader(c, HeaderUserID, "user id")
}

func identityHeader(c *gin.Context, header, name string) (string, error) {
	// Some gateways forward the header value quoted.
	value := strings.Trim(strings.TrimSpace(c.GetHeader(header)), `"`)
	if value == "" {
		return "", apperrors.NewValidation(header, "missing "+name+" header")
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", apperrors.NewValidation(header, "malformed "+name)
	}
	return value, nil
}
