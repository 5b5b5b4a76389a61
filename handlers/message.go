package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"msgstore/models"
	"msgstore/planner"
	"msgstore/service"
)

type MessageHandler struct {
	svc *service.MessageService
	log *zap.Logger
}

func NewMessageHandler(svc *service.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, log: log}
}

// SearchChat serves GET /api/chats/:chatId/messages.
func (h *MessageHandler) SearchChat(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	req.ChatID = c.Param("chatId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page, err := h.svc.Search(ctx, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Latest serves GET /api/chats/:chatId/messages/latest.
func (h *MessageHandler) Latest(c *gin.Context) {
	limit, err := queryInt64(c, "limit")
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page, err := h.svc.Latest(ctx, c.Param("chatId"), int(limit))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// FreeSearch serves GET /api/messages/search. chatId or msgId is required.
func (h *MessageHandler) FreeSearch(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	req.ChatID = c.Query("chatId")
	req.MsgID = c.Query("msgId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page, err := h.svc.FreeSearch(ctx, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetMessage serves GET /api/messages/:msgId with an optional chatId query.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := h.svc.Get(ctx, c.Query("chatId"), c.Param("msgId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type insertRequest struct {
	ChatID        string    `json:"chatId" validate:"required,max=128"`
	MsgID         string    `json:"msgId" validate:"required,max=128"`
	FromUserID    string    `json:"fromUserId" validate:"required,max=128"`
	ToUserID      string    `json:"toUserId" validate:"required,max=128"`
	MsgContent    string    `json:"msgContent"`
	MsgFormat     enumValue `json:"msgFormat" validate:"required"`
	MsgStatus     enumValue `json:"msgStatus"`
	MsgCreateTime int64     `json:"msgCreateTime" validate:"required,gt=0"`
}

// InsertMessage serves POST /api/messages.
func (h *MessageHandler) InsertMessage(c *gin.Context) {
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}

	rec := &models.MessageRecord{
		ChatID:        req.ChatID,
		MsgID:         req.MsgID,
		FromUserID:    req.FromUserID,
		ToUserID:      req.ToUserID,
		MsgContent:    req.MsgContent,
		MsgCreateTime: req.MsgCreateTime,
	}
	format, err := models.ParseMsgFormat(string(req.MsgFormat))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	rec.MsgFormat = format
	if req.MsgStatus != "" {
		if rec.MsgStatus, err = models.ParseMsgStatus(string(req.MsgStatus)); err != nil {
			writeError(c, h.log, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Insert(ctx, rec); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type statusRequest struct {
	MsgStatus enumValue `json:"msgStatus" validate:"required"`
}

// AdvanceStatus serves PATCH /api/chats/:chatId/messages/:msgId/status.
func (h *MessageHandler) AdvanceStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}
	next, err := models.ParseMsgStatus(string(req.MsgStatus))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := h.svc.AdvanceStatus(ctx, c.Param("chatId"), c.Param("msgId"), next)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Withdraw serves POST /api/chats/:chatId/messages/:msgId/withdraw.
func (h *MessageHandler) Withdraw(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := h.svc.Withdraw(ctx, c.Param("chatId"), c.Param("msgId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// parseRequest reads the filter query parameters shared by the search
// endpoints.
func parseRequest(c *gin.Context) (planner.Request, error) {
	req := planner.Request{
		FromUserID: c.Query("fromUserId"),
		ToUserID:   c.Query("toUserId"),
		Content:    c.Query("content"),
		Cursor:     c.Query("cursor"),
	}

	if v := c.Query("msgStatus"); v != "" {
		s, err := models.ParseMsgStatus(v)
		if err != nil {
			return req, err
		}
		req.Status = &s
	}
	if v := c.Query("msgFormat"); v != "" {
		f, err := models.ParseMsgFormat(v)
		if err != nil {
			return req, err
		}
		req.Format = &f
	}
	if v := c.Query("withdrawFlag"); v != "" {
		w, err := models.ParseWithdrawFlag(v)
		if err != nil {
			return req, err
		}
		req.Withdraw = &w
	}

	var err error
	if req.StartTime, err = queryInt64(c, "startTime"); err != nil {
		return req, err
	}
	if req.EndTime, err = queryInt64(c, "endTime"); err != nil {
		return req, err
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, invalidParam("limit", v)
		}
		req.Limit = n
	}
	return req, nil
}
