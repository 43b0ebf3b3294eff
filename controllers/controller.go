package controllers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RespondError(c *gin.Context, msg string, code int) {
	if code >= 500 {
		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.String("error", msg))
	}
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}
