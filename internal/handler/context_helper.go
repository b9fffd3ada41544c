package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/patient-progress-api/internal/middleware"
	"github.com/noah-isme/patient-progress-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return "anonymous"
}

func parseInt(raw string) (int, error) {
	return strconv.Atoi(raw)
}
