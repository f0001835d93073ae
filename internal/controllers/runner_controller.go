package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/proctor-backend/internal/judge"
)

// RunnerController proxies online code runs to the execution service.
type RunnerController struct {
	Judge *judge.Client
}

type runRequest struct {
	SourceCode      string `json:"source_code" binding:"required"`
	Language        string `json:"language" binding:"required"`
	Stdin           string `json:"stdin"`
	CPULimitSeconds int    `json:"cpu_limit_seconds"`
	MemoryLimitKB   int    `json:"memory_limit_kb"`
}

func (rc *RunnerController) Execute(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := rc.Judge.Execute(c.Request.Context(), judge.Request{
		SourceCode:      req.SourceCode,
		Language:        req.Language,
		Stdin:           req.Stdin,
		CPULimitSeconds: req.CPULimitSeconds,
		MemoryLimitKB:   req.MemoryLimitKB,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
