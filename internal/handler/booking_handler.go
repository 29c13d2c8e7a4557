package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/service-booking/internal/application"
	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/middleware"
	"github.com/taskhive/service-booking/pkg/response"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service  *application.BookingService
	messages *application.MessageService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService, messages *application.MessageService) *BookingHandler {
	return &BookingHandler{service: service, messages: messages}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", middleware.RequireRole(auth.RoleRequester), h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.DELETE("/:id", middleware.RequireRole(auth.RoleRequester), h.CancelBooking)
		bookings.PUT("/:id/status", middleware.RequireRole(auth.RoleAdmin, auth.RoleProvider), h.UpdateStatus)
		bookings.GET("/:id/messages", h.BookingMessages)
	}

	me := r.Group("/api/v1/me")
	me.Use(authMW)
	{
		me.GET("/standing", h.GetStanding)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings?role=&status=. Requesters see
// bookings they made, providers bookings made with them, admins everything.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.ListBookings(c.Request.Context(), actor, application.ListBookingsQuery{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelBooking handles DELETE /api/v1/bookings/:id.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.CancelBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateStatus handles PUT /api/v1/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetBookingStatus(c.Request.Context(), actor, bookingID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// BookingMessages handles GET /api/v1/bookings/:id/messages.
func (h *BookingHandler) BookingMessages(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.messages.GetBookingThread(c.Request.Context(), actor, bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetStanding handles GET /api/v1/me/standing.
func (h *BookingHandler) GetStanding(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	result, err := h.service.GetStanding(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// actorFrom reads the authenticated caller. It writes a 401 and returns
// false when the auth middleware did not run.
func actorFrom(c *gin.Context) (bookingDomain.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return bookingDomain.Actor{}, false
	}
	role, ok := middleware.GetUserRole(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return bookingDomain.Actor{}, false
	}
	return bookingDomain.Actor{ID: userID, Role: role}, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
