package directory

import (
	"net/http"

	"faculty_meetings_backend/platform/httpkit"
	"faculty_meetings_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// RegisterTokenRequest is the body of PUT /push-token.
type RegisterTokenRequest struct {
	Token string `json:"token" validate:"required,notblank,max=4096"`
}

// FacultyListResponse is the body of GET /admin/faculty.
type FacultyListResponse struct {
	Items []string `json:"items"`
}

// Handler exposes push token registration and faculty administration.
type Handler struct {
	tokens  *TokenStore
	faculty *FacultyStore
	val     *validator.Validator
}

func NewHandler(tokens *TokenStore, faculty *FacultyStore, val *validator.Validator) *Handler {
	return &Handler{tokens: tokens, faculty: faculty, val: val}
}

// RegisterToken handles PUT /api/v1/push-token
func (h *Handler) RegisterToken(c *gin.Context) {
	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.tokens.Set(c.Request.Context(), identity.UserID(), req.Token); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// RemoveToken handles DELETE /api/v1/push-token
func (h *Handler) RemoveToken(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.tokens.Remove(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// ListFaculty handles GET /api/v1/admin/faculty
func (h *Handler) ListFaculty(c *gin.Context) {
	items, err := h.faculty.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, FacultyListResponse{Items: items})
}

// AddFaculty handles PUT /api/v1/admin/faculty/:userId
func (h *Handler) AddFaculty(c *gin.Context) {
	if err := h.faculty.Add(c.Request.Context(), c.Param("userId")); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// RemoveFaculty handles DELETE /api/v1/admin/faculty/:userId
func (h *Handler) RemoveFaculty(c *gin.Context) {
	if err := h.faculty.Remove(c.Request.Context(), c.Param("userId")); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}
