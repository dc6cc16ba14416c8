package chat

import (
	"net/http"

	sec "ChatApp/middleware/security"
	"ChatApp/module/chat/service"
	errs "ChatApp/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Mount(protected *gin.RouterGroup) {
	protected.GET("/chats", h.list)
	protected.POST("/chats", h.create)
}

func (h *Handler) list(c *gin.Context) {
	chats, err := h.svc.ListForUser(c.Request.Context(), sec.UserID(c))
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

type createReq struct {
	OtherUserID string `json:"otherUserId" binding:"required"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	chat, created, err := h.svc.CreateDirect(c.Request.Context(), sec.UserID(c), req.OtherUserID)
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat})
}
