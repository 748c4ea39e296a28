package handler

import (
	"net/http"
	"strconv"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/chunk/service"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

type uploadChunk struct {
	ChunkIndex      *int   `json:"chunkIndex"`
	EncryptedBlob   []byte `json:"encryptedBlob"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

type uploadRequest struct {
	FileName     string        `json:"fileName"`
	FileType     string        `json:"fileType"`
	EncryptedDEK []byte        `json:"encryptedDEK"`
	Chunks       []uploadChunk `json:"chunks"`
}

// RegisterChunkRoutes mounts the chunk endpoints on an authenticated group.
func RegisterChunkRoutes(r gin.IRoutes, svc *service.Service, adm middleware.Admission) {
	r.POST("/api/documents/:teamId/chunks", adm.Upload, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req uploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		in := service.UploadRequest{
			FileName:     req.FileName,
			FileType:     req.FileType,
			EncryptedDEK: req.EncryptedDEK,
			Chunks:       make([]service.ChunkInput, 0, len(req.Chunks)),
		}
		for _, ch := range req.Chunks {
			if ch.ChunkIndex == nil {
				apperr.Respond(c, apperr.Invalid("missing_chunk_index", "every chunk needs a chunkIndex"))
				return
			}
			in.Chunks = append(in.Chunks, service.ChunkInput{
				Index:           *ch.ChunkIndex,
				Payload:         ch.EncryptedBlob,
				ExpectedVersion: ch.ExpectedVersion,
			})
		}
		res, err := svc.Upload(c.Request.Context(), p, c.Param("teamId"), in)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.GET("/api/documents/:documentId/chunks", adm.Download, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		list, err := svc.ListLive(c.Request.Context(), p, c.Param("documentId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.DELETE("/api/documents/:documentId/chunks/:chunkIndex", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		index, err := strconv.Atoi(c.Param("chunkIndex"))
		if err != nil || index < 0 {
			apperr.Respond(c, apperr.Invalid("invalid_chunk_index", "chunkIndex must be a non-negative integer"))
			return
		}
		v, err := svc.DeleteChunk(c.Request.Context(), p, c.Param("documentId"), index)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "chunkIndex": index, "version": v})
	})
}
