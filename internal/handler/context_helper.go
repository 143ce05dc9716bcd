package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/middleware"
)

func actorFromContext(c *gin.Context) dto.Actor {
	actor := dto.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := middleware.CurrentUser(c); claims != nil {
		actor.UserID = claims.UserID
	}
	return actor
}
