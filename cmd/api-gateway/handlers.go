package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bridgeml/bridge/cmd/api-gateway/middleware"
	"github.com/bridgeml/bridge/internal/pipeline"
	"github.com/bridgeml/bridge/internal/results"
	"github.com/bridgeml/bridge/internal/upload"
	"github.com/bridgeml/bridge/pkg/types"
)

// statusFromError maps the service error taxonomy to HTTP statuses
func statusFromError(err error) int {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNotSessionOwner):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFromError(err), types.APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// Upload handlers

func handleStartUpload(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		var req struct {
			TotalFiles int `json:"total_files" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		sessionID, err := uploadService.StartSession(c.Request.Context(), userID, req.TotalFiles)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Data:    gin.H{"session_id": sessionID},
		})
	}
}

func handleSubmitChunk(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)
		sessionID := c.Param("sessionId")

		var req types.ChunkUpload
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid chunk request",
			})
			return
		}

		fileHeader, err := c.FormFile("chunkFile")
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Missing chunk payload",
			})
			return
		}

		payload, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Unreadable chunk payload",
			})
			return
		}
		defer payload.Close()

		if err := uploadService.SubmitChunk(c.Request.Context(), sessionID, userID, req, payload); err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Chunk accepted",
		})
	}
}

func handleUploadStatus(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		status, err := uploadService.Status(c.Param("sessionId"))
		if err != nil {
			fail(c, err)
			return
		}
		if status.UserID != userID {
			fail(c, types.ErrNotSessionOwner)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: status})
	}
}

// Pipeline handlers

func handleStartPipeline(pipelineService *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		sessionID, err := pipelineService.StartSession(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Data:    gin.H{"session_id": sessionID},
		})
	}
}

func handleDownloadFiles(pipelineService *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		var req struct {
			Label string `json:"label" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		resp, err := pipelineService.DownloadFiles(c.Request.Context(), c.Param("sessionId"), userID, req.Label)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: resp})
	}
}

func handleCleanFiles(pipelineService *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		var req types.CleaningRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		resp, err := pipelineService.CleanFiles(c.Request.Context(), c.Param("sessionId"), userID, req)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: resp})
	}
}

func handleTrainModel(pipelineService *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		var req types.TrainingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "Invalid request format",
			})
			return
		}

		result, err := pipelineService.TrainModel(c.Request.Context(), c.Param("sessionId"), userID, req)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: result})
	}
}

func handlePipelineStatus(pipelineService *pipeline.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		status, err := pipelineService.Status(c.Param("sessionId"), userID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: status})
	}
}

// Results and dataset handlers

func handleFeatures(resultsService *results.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		features, err := resultsService.Features(c.Request.Context(), userID, c.Param("label"))
		if err != nil {
			fail(c, err)
			return
		}
		if len(features) == 0 {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "No feature importances found",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: features})
	}
}

func handleImages(fetch func(c *gin.Context, userID, label string, start, count int) ([]string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		start, err := strconv.Atoi(c.DefaultQuery("start", "0"))
		if err != nil {
			start = 0
		}
		count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
		if err != nil {
			count = 10
		}

		images, err := fetch(c, userID, c.Param("label"), start, count)
		if err != nil {
			fail(c, err)
			return
		}
		if len(images) == 0 {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "No images found",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: images})
	}
}

func handleListLabels(resultsService *results.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		labels, err := resultsService.Labels(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: labels})
	}
}

func handleListFiles(resultsService *results.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		files, err := resultsService.ListFiles(c.Request.Context(), userID, c.Param("label"))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: files})
	}
}

func handleRemoveFile(resultsService *results.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		if err := resultsService.RemoveFile(c.Request.Context(), userID, c.Param("label"), c.Param("fileName")); err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "File removed"})
	}
}

func handleRemoveLabel(resultsService *results.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)

		if err := resultsService.RemoveLabel(c.Request.Context(), userID, c.Param("label")); err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Label removed"})
	}
}
