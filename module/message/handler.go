package message

import (
	"net/http"
	"strconv"

	sec "ChatApp/middleware/security"
	chatsvc "ChatApp/module/chat/service"
	"ChatApp/module/message/service"
	errs "ChatApp/tools/errs"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Handler struct {
	msgs  *service.Service
	chats *chatsvc.Service
}

func NewHandler(msgs *service.Service, chats *chatsvc.Service) *Handler {
	return &Handler{msgs: msgs, chats: chats}
}

func (h *Handler) Mount(protected *gin.RouterGroup) {
	protected.GET("/messages/search", h.search)
	protected.GET("/messages/:chatId", h.history)
}

func (h *Handler) history(c *gin.Context) {
	chatID := c.Param("chatId")
	userID := sec.UserID(c)

	ok, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, errs.ErrForbidden.WithDetail("not a participant of this chat"))
		return
	}

	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)

	msgs, pagination, err := h.msgs.History(c.Request.Context(), chatID, page, limit)
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "pagination": pagination})
}

func (h *Handler) search(c *gin.Context) {
	userID := sec.UserID(c)
	q := c.Query("q")

	// Scope the search to the caller's own chats, optionally narrowed to one.
	chatIDs, err := h.chats.ChatIDsOf(c.Request.Context(), userID)
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	if chatID := c.Query("chatId"); chatID != "" {
		cid, err := primitive.ObjectIDFromHex(chatID)
		if err != nil {
			c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid chat id"))
			return
		}
		found := false
		for _, id := range chatIDs {
			if id == cid {
				found = true
				break
			}
		}
		if !found {
			c.JSON(http.StatusForbidden, errs.ErrForbidden.WithDetail("not a participant of this chat"))
			return
		}
		chatIDs = []primitive.ObjectID{cid}
	}

	msgs, err := h.msgs.Search(c.Request.Context(), q, chatIDs)
	if err != nil {
		status, ce := errs.HTTPStatus(err)
		c.JSON(status, ce)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
