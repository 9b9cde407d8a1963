package routes

import (
	"gameplace/booking"
	"gameplace/middleware"
	"gameplace/ratelim"

	"github.com/julienschmidt/httprouter"
)

func AddReservationRoutes(router *httprouter.Router, h *booking.Handler, rl *ratelim.RateLimiter) {
	router.POST("/api/reservations", rl.Limit(middleware.Authenticate(h.CreateReservation)))
	router.GET("/api/reservations", middleware.Authenticate(h.ListReservations))
	router.GET("/api/reservations/:id", middleware.Authenticate(h.GetReservation))
	router.GET("/api/reservations/:id/slip", middleware.Authenticate(h.PrintSlip))
	router.POST("/api/reservations/:id/cancel", middleware.Authenticate(h.CancelReservation))

	router.POST("/api/reservations/:id/approve", middleware.Authenticate(middleware.RequireAdmin(h.ApproveReservation)))
	router.POST("/api/reservations/:id/reject", middleware.Authenticate(middleware.RequireAdmin(h.RejectReservation)))
	router.POST("/api/reservations/:id/checkin", middleware.Authenticate(middleware.RequireAdmin(h.CheckInReservation)))
	router.POST("/api/reservations/:id/noshow", middleware.Authenticate(middleware.RequireAdmin(h.NoShowReservation)))
	router.POST("/api/reservations/:id/complete", middleware.Authenticate(middleware.RequireAdmin(h.CompleteReservation)))
	router.POST("/api/approvals/bulk", middleware.Authenticate(middleware.RequireAdmin(h.ApproveBulk)))
	router.POST("/api/checkin/scan", rl.Limit(middleware.Authenticate(middleware.RequireAdmin(h.ScanCheckIn))))

	router.GET("/api/availability/:typeId/:date", h.GetAvailability)
}

func AddDeviceRoutes(router *httprouter.Router, h *booking.Handler) {
	router.GET("/api/devicetypes", h.ListDeviceTypes)
	router.POST("/api/devicetypes", middleware.Authenticate(middleware.RequireAdmin(h.CreateDeviceType)))
	router.GET("/api/devices", h.ListDevices)
	router.POST("/api/devices", middleware.Authenticate(middleware.RequireAdmin(h.CreateDevice)))
	router.PUT("/api/devices/:id/status", middleware.Authenticate(middleware.RequireAdmin(h.UpdateDeviceStatus)))
}

func AddRealtimeRoutes(router *httprouter.Router, hub *booking.Hub) {
	router.GET("/ws/reservations/:typeId", hub.HandleWS)
}
