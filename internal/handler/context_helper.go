package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/academia-platform/academia-api/internal/middleware"
	"github.com/academia-platform/academia-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// studentIDFromContext returns the student row the caller's login points at,
// or "" when the caller is not a student.
func studentIDFromContext(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleStudent {
		return ""
	}
	return claims.RelatedID
}

// teacherIDFromContext returns the teacher row the caller's login points at,
// or "" when the caller is not a teacher.
func teacherIDFromContext(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleTeacher {
		return ""
	}
	return claims.RelatedID
}
