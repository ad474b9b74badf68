package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/common"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/httpapi/middleware"
	"github.com/bravohq/dispatch/internal/orchestrate"
	"github.com/bravohq/dispatch/internal/upload"
)

const defaultTemperature = 0.7

// chatRequest is the normalized form of a /chat call, which may arrive
// as JSON or multipart form data.
type chatRequest struct {
	SystemPrompt string
	Message      string
	Model        string
	Temperature  float32
	SessionID    string
	File         *multipart.FileHeader
}

// extractChatRequest mirrors the lenient client contract: every field
// is optional, a missing session id gets a fresh uuid, and an
// unparseable temperature silently falls back to the default.
func extractChatRequest(c *gin.Context) chatRequest {
	req := chatRequest{
		Temperature: defaultTemperature,
		SessionID:   uuid.NewString(),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req.SystemPrompt = c.PostForm("system_prompt")
		req.Message = c.PostForm("message")
		req.Model = c.PostForm("model")
		if t, err := strconv.ParseFloat(c.PostForm("temperature"), 32); err == nil {
			req.Temperature = float32(t)
		}
		if sid := firstNonEmpty(c.PostForm("room"), c.PostForm("session_id")); sid != "" {
			req.SessionID = sid
		}
		if fh, err := c.FormFile("file"); err == nil {
			req.File = fh
		}
		return req
	}

	var body struct {
		SystemPrompt string `json:"system_prompt"`
		Message      string `json:"message"`
		Model        string `json:"model"`
		Temperature  any    `json:"temperature"`
		Room         string `json:"room"`
		SessionID    string `json:"session_id"`
	}
	_ = c.ShouldBindJSON(&body) // tolerate an empty or invalid body

	req.SystemPrompt = body.SystemPrompt
	req.Message = body.Message
	req.Model = body.Model
	if t, ok := coerceFloat(body.Temperature); ok {
		req.Temperature = t
	}
	if sid := firstNonEmpty(body.Room, body.SessionID); sid != "" {
		req.SessionID = sid
	}
	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// coerceFloat accepts both JSON numbers and numeric strings.
func coerceFloat(v any) (float32, bool) {
	switch t := v.(type) {
	case float64:
		return float32(t), true
	case string:
		if f, err := strconv.ParseFloat(t, 32); err == nil {
			return float32(f), true
		}
	}
	return 0, false
}

// Chat runs one synchronous chat turn: store any uploaded file,
// orchestrate, generate, persist, reply.
func (h *Handler) Chat(c *gin.Context) {
	req := extractChatRequest(c)

	ctx := c.Request.Context()
	if h.Cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Cfg.Server.RequestTimeout)
		defer cancel()
	}

	uploaded, err := h.storeUpload(ctx, req.SessionID, req.File)
	if err != nil {
		h.Logger.Error("storing upload failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to store uploaded file")
		return
	}

	message := req.Message
	if message == "" && uploaded != nil {
		message = fmt.Sprintf(
			"User uploaded a file named '%s'. Acknowledge and respond with relevant instructions.",
			uploaded.OriginalFilename,
		)
	}

	resp, err := h.Pipeline.Respond(ctx, orchestrate.Request{
		SessionID:    req.SessionID,
		Message:      message,
		Model:        req.Model,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.Logger.Error("chat turn failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to process chat message")
		return
	}

	// The session id may be server-minted, so hand back the token that
	// authorizes /uploads retrieval for it.
	token, err := h.signSessionToken(req.SessionID)
	if err != nil {
		h.Logger.Warn("sign session token failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	payload := gin.H{
		"session_id":           req.SessionID,
		"session_token":        token,
		"user_message":         resp.UserMessage,
		"assistant_reply":      resp.AssistantReply,
		"conversation_history": resp.ConversationHistory,
		"orchestration":        resp.Orchestration,
		"fileUrl":              nil,
		"fileName":             nil,
		"fileType":             nil,
		"fileId":               nil,
	}
	if uploaded != nil {
		payload["fileUrl"] = uploaded.FileURL
		payload["fileName"] = uploaded.OriginalFilename
		payload["fileType"] = uploaded.FileType
		payload["fileId"] = uploaded.ID
	}
	common.OK(c, payload)
}

// storeUpload saves the multipart file and registers it for the
// session. A nil header is not an error.
func (h *Handler) storeUpload(ctx context.Context, sessionID string, fh *multipart.FileHeader) (*upload.File, error) {
	if fh == nil {
		return nil, nil
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	key, url, err := h.Store.Save(fh.Filename, src)
	if err != nil {
		return nil, err
	}

	f := &upload.File{
		SessionID:        sessionID,
		Filename:         key,
		OriginalFilename: fh.Filename,
		FileURL:          url,
		FileType:         fh.Header.Get("Content-Type"),
	}
	if err := h.Uploads.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

type asyncChatReq struct {
	Message      string `json:"message" binding:"required"`
	Model        string `json:"model"`
	Temperature  any    `json:"temperature"`
	Room         string `json:"room"`
	SessionID    string `json:"session_id"`
	SystemPrompt string `json:"system_prompt"`
}

// ChatAsync persists a queued job and hands it to the worker.
func (h *Handler) ChatAsync(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async jobs not configured")
		return
	}

	var req asyncChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sessionID := firstNonEmpty(req.Room, req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	temperature := float64(defaultTemperature)
	if t, ok := coerceFloat(req.Temperature); ok {
		temperature = float64(t)
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	job := &conversation.Job{
		ID:          jobID,
		SessionID:   sessionID,
		Prompt:      req.Message,
		Model:       req.Model,
		Temperature: temperature,
		Status:      conversation.JobQueued,
	}
	if err := h.Convs.CreateJob(c.Request.Context(), job); err != nil {
		h.Logger.Error("create job failed", zap.String("job_id", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), jobID); err != nil {
		h.Logger.Error("enqueue job failed", zap.String("job_id", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.OK(c, gin.H{"job_id": jobID, "session_id": sessionID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Convs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

// sessionTokenTTL bounds how long an issued upload token stays valid.
const sessionTokenTTL = 24 * time.Hour

func (h *Handler) signSessionToken(sessionID string) (string, error) {
	return middleware.SignSessionToken(sessionID, h.Cfg.Server.SessionSecret, sessionTokenTTL)
}
