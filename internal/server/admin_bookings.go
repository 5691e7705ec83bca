package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	admindomain "github.com/smallbiznis/staybook/internal/adminaction/domain"
)

type adminBookingRequest struct {
	BookingID    string   `json:"booking_id" binding:"required,snowflake"`
	Action       string   `json:"action" binding:"required"`
	Reason       string   `json:"reason"`
	RefundAmount *float64 `json:"refund_amount"`
}

func (s *Server) AdminBookingAction(c *gin.Context) {
	var req adminBookingRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	bookingID, _ := parseID(req.BookingID)
	c.Set("booking_id", bookingID.String())

	var refundAmount float64
	if req.RefundAmount != nil {
		refundAmount = *req.RefundAmount
	}

	result, err := s.adminSvc.Process(c.Request.Context(), admindomain.Request{
		BookingID:    bookingID,
		Action:       admindomain.Action(req.Action),
		Reason:       req.Reason,
		RefundAmount: refundAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
