// Package controller exposes the auth, profile and admin handlers.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/middleware"
	"github.com/Laisky/disaster-alert/internal/web/user/model"
	"github.com/Laisky/disaster-alert/internal/web/user/service"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// messages maps service errors to client-facing text and status.
var messages = []struct {
	err    error
	status int
	msg    string
}{
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already registered"},
	{service.ErrUsernameTaken, http.StatusBadRequest, "Username already taken"},
	{service.ErrMissingRegistration, http.StatusBadRequest, "Username, email and password are required"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{service.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{service.ErrInvalidGender, http.StatusBadRequest, "Invalid gender"},
	{service.ErrSelfDemotion, http.StatusBadRequest, "You cannot remove your own admin role"},
}

// Controller serves /auth, /users and /admin.
type Controller struct {
	svc     *service.Service
	timeout time.Duration
}

// New returns a Controller.
func New(svc *service.Service, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Controller{svc: svc, timeout: timeout}
}

// fail writes the response for err, logging anything unexpected.
func fail(c *gin.Context, err error, what string) {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			middleware.Abort(c, m.status, m.msg)
			return
		}
	}

	gmw.GetLogger(c).Error(what, zap.Error(err))
	middleware.Abort(c, http.StatusInternalServerError, "Internal server error")
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register.
func (ctl *Controller) Register(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	req := new(registerReq)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := ctl.svc.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		fail(c, err, "register")
		return
	}

	c.JSON(http.StatusCreated, sess)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (ctl *Controller) Login(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	req := new(loginReq)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := ctl.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		fail(c, err, "login")
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Profile handles GET /users/profile.
func (ctl *Controller) Profile(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.Abort(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	profile, err := service.ToProfile(user)
	if err != nil {
		fail(c, err, "load profile")
		return
	}

	c.JSON(http.StatusOK, profile)
}

type profileReq struct {
	Username *string `json:"username"`
	Phone    *string `json:"phone"`
	Gender   *string `json:"gender"`
	Location *string `json:"location"`
}

// UpdateProfile handles PUT /users/profile.
func (ctl *Controller) UpdateProfile(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.Abort(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	req := new(profileReq)
	if err = c.ShouldBindJSON(req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := ctl.svc.UpdateProfile(ctx, user, service.ProfileUpdate{
		Username: req.Username,
		Phone:    req.Phone,
		Gender:   req.Gender,
		Location: req.Location,
	})
	if err != nil {
		fail(c, err, "update profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    profile,
	})
}

type roleReq struct {
	Role string `json:"role"`
}

// SetRole handles PUT /admin/users/:id/role.
func (ctl *Controller) SetRole(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	actor, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.Abort(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	req := new(roleReq)
	_ = c.ShouldBindJSON(req)

	updated, err := ctl.svc.SetRole(ctx, actor, c.Param("id"), req.Role)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"message":      "Invalid role",
				"allowedRoles": model.Roles,
			})
			return
		}

		fail(c, err, "update user role")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User role updated successfully",
		"user":    updated,
	})
}
