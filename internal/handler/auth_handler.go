package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/pkg/response"
)

type authService interface {
	SendOTP(ctx context.Context, req models.SendOTPRequest) (*models.SendOTPResponse, error)
	VerifyOTP(ctx context.Context, req models.VerifyOTPRequest) (*models.LoginResponse, error)
	Me(ctx context.Context, userID string) (*models.UserInfo, error)
}

type userChecker interface {
	CheckUser(ctx context.Context, email string) (*models.CheckUserResponse, error)
}

// AuthHandler wires HTTP endpoints to the OTP login flow.
type AuthHandler struct {
	service authService
	users   userChecker
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, users userChecker) *AuthHandler {
	return &AuthHandler{service: svc, users: users}
}

// SendOTP godoc
// @Summary Request a login code
// @Description Mails a one-time login code to the address. Any previous code is replaced.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.SendOTPRequest true "Email"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/send-otp [post]
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req models.SendOTPRequest
	if !bindJSON(c, &req, "invalid otp request") {
		return
	}

	res, err := h.service.SendOTP(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// VerifyOTP godoc
// @Summary Exchange a login code for an access token
// @Description Consumes the code. Unknown emails are provisioned as students.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyOTPRequest true "Email and code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if !bindJSON(c, &req, "invalid otp payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// CheckUser godoc
// @Summary Check which role an email would log in as
// @Tags Authentication
// @Produce json
// @Param email path string true "Email"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/check-user/{email} [get]
func (h *AuthHandler) CheckUser(c *gin.Context) {
	res, err := h.users.CheckUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	res, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
