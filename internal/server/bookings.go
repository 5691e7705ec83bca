package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/auth"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
)

type checkAvailabilityRequest struct {
	PropertyID string `json:"property_id" binding:"required,snowflake"`
	CheckIn    string `json:"check_in" binding:"required,date_only"`
	CheckOut   string `json:"check_out" binding:"required,date_only"`
}

type createBookingRequest struct {
	PropertyID  string `json:"property_id" binding:"required,snowflake"`
	CheckIn     string `json:"check_in" binding:"required,date_only"`
	CheckOut    string `json:"check_out" binding:"required,date_only"`
	GuestsCount int    `json:"guests_count" binding:"required,min=1"`
}

func (s *Server) CheckAvailability(c *gin.Context) {
	var req checkAvailabilityRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	propertyID, _ := parseID(req.PropertyID)
	checkIn, _ := bookingdomain.ParseDate(req.CheckIn)
	checkOut, _ := bookingdomain.ParseDate(req.CheckOut)

	result, err := s.availabilitySvc.Check(c.Request.Context(), availabilitydomain.CheckRequest{
		PropertyID: propertyID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.Conflicts == nil {
		result.Conflicts = []availabilitydomain.DateRange{}
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) CreateBooking(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createBookingRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	propertyID, _ := parseID(req.PropertyID)
	checkIn, _ := bookingdomain.ParseDate(req.CheckIn)
	checkOut, _ := bookingdomain.ParseDate(req.CheckOut)

	resp, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateBookingRequest{
		PropertyID:  propertyID,
		GuestID:     identity.UserID,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		GuestsCount: req.GuestsCount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("booking_id", resp.Booking.ID)

	c.JSON(http.StatusCreated, resp)
}

// GetBooking shows a booking to its guest, its host and admins. Anyone
// else gets 404.
func (s *Server) GetBooking(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	view, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	uid := identity.UserID.String()
	if !identity.IsAdmin() && view.GuestID != uid && view.HostID != uid {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": view})
}
