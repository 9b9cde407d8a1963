package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gameplace/models"
	"gameplace/reservation"
	"gameplace/utils"

	"github.com/julienschmidt/httprouter"
)

// DeviceRegistry manages the device catalogue. Both db.Store and memstore.Store satisfy it.
type DeviceRegistry interface {
	CreateDeviceType(ctx context.Context, t *models.DeviceType) error
	ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error)
	FindDeviceType(ctx context.Context, id string) (*models.DeviceType, error)
	CreateDevice(ctx context.Context, d *models.Device) error
	ListDevices(ctx context.Context, deviceTypeID string) ([]models.Device, error)
	FindDevice(ctx context.Context, id string) (*models.Device, error)
	UpdateDeviceStatus(ctx context.Context, id string, status models.DeviceStatus) error
}

func (h *Handler) storeErr(w http.ResponseWriter, what, id string, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, string(reservation.KindNotFound), fmt.Sprintf("%s %s not found", what, id))
	case errors.Is(err, reservation.ErrDuplicate):
		utils.RespondWithError(w, http.StatusConflict, string(reservation.KindValidation), fmt.Sprintf("%s already exists", what))
	default:
		writeErr(w, err)
	}
}

// GET /api/availability/:typeId/:date
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	typeID, date := ps.ByName("typeId"), ps.ByName("date")
	devices, err := h.svc.Availability(r.Context(), typeID, date)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"deviceTypeId": typeID,
		"date":         date,
		"devices":      devices,
	})
}

// GET /api/devicetypes
func (h *Handler) ListDeviceTypes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	types, err := h.devices.ListDeviceTypes(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if types == nil {
		types = []models.DeviceType{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"deviceTypes": types})
}

// POST /api/devicetypes {"name": "PS5"}
func (h *Handler) CreateDeviceType(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), "name is required")
		return
	}
	t := &models.DeviceType{ID: utils.GetUUID(), Name: name, CreatedAt: time.Now()}
	if err := h.devices.CreateDeviceType(r.Context(), t); err != nil {
		h.storeErr(w, "device type", t.ID, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"deviceType": t})
}

// GET /api/devices?typeId=
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	devices, err := h.devices.ListDevices(r.Context(), r.URL.Query().Get("typeId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// POST /api/devices {"deviceTypeId": "...", "deviceNumber": 3}
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		DeviceTypeID string `json:"deviceTypeId"`
		DeviceNumber int    `json:"deviceNumber"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	if body.DeviceNumber < 1 {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), "deviceNumber must be positive")
		return
	}
	if _, err := h.devices.FindDeviceType(r.Context(), body.DeviceTypeID); err != nil {
		h.storeErr(w, "device type", body.DeviceTypeID, err)
		return
	}
	now := time.Now()
	d := &models.Device{
		ID:           utils.GetUUID(),
		DeviceTypeID: body.DeviceTypeID,
		DeviceNumber: body.DeviceNumber,
		Status:       models.DeviceAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.devices.CreateDevice(r.Context(), d); err != nil {
		h.storeErr(w, "device", d.ID, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"device": d})
}

// PUT /api/devices/:id/status {"status": "maintenance"}
//
// rental is driven by check-in and completion only.
func (h *Handler) UpdateDeviceStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	var body struct {
		Status models.DeviceStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	if !body.Status.Valid() || body.Status == models.DeviceRental {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation),
			fmt.Sprintf("status must be available, maintenance or disabled, got %q", body.Status))
		return
	}
	d, err := h.devices.FindDevice(r.Context(), id)
	if err != nil {
		h.storeErr(w, "device", id, err)
		return
	}
	if d.Status == models.DeviceRental {
		utils.RespondWithError(w, http.StatusConflict, string(reservation.KindInvalidTransition),
			fmt.Sprintf("device %d is in use", d.DeviceNumber))
		return
	}
	if err := h.devices.UpdateDeviceStatus(r.Context(), id, body.Status); err != nil {
		h.storeErr(w, "device", id, err)
		return
	}
	d.Status = body.Status
	d.UpdatedAt = time.Now()
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"device": d})
}
