package user

import (
	"net/http"

	sec "ChatApp/middleware/security"
	"ChatApp/module/user/service"
	errs "ChatApp/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Mount registers the auth and user routes. The auth group is public; the
// user group runs behind the JWT middleware.
func (h *Handler) Mount(public, protected *gin.RouterGroup) {
	public.POST("/auth/register", h.register)
	public.POST("/auth/login", h.login)
	public.POST("/auth/google", h.loginGoogle)

	protected.GET("/auth/me", h.me)
	protected.GET("/users/search", h.search)
	protected.GET("/users/:id", h.get)
	protected.PUT("/users/:id", h.update)
}

type registerReq struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	u, token, err := h.svc.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	u, token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

type googleReq struct {
	GoogleID string `json:"googleId" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) loginGoogle(c *gin.Context) {
	var req googleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	u, token, err := h.svc.LoginGoogle(c.Request.Context(), req.GoogleID, req.Email, req.Name, req.Avatar)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), sec.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

func (h *Handler) update(c *gin.Context) {
	if c.Param("id") != sec.UserID(c) {
		c.JSON(http.StatusForbidden, errs.ErrForbidden.WithDetail("can only edit own profile"))
		return
	}
	var p service.UpdateParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), sec.UserID(c), p)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) search(c *gin.Context) {
	users, err := h.svc.Search(c.Request.Context(), c.Query("q"), sec.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func abortWith(c *gin.Context, err error) {
	status, ce := errs.HTTPStatus(err)
	c.JSON(status, ce)
}
