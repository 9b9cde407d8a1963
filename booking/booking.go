package booking

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"gameplace/models"
	"gameplace/reservation"
	"gameplace/utils"

	"github.com/julienschmidt/httprouter"
)

// Handler serves the reservation API on top of reservation.Service.
type Handler struct {
	svc        *reservation.Service
	devices    DeviceRegistry
	slipSecret []byte
}

func NewHandler(svc *reservation.Service, devices DeviceRegistry, slipSecret string) *Handler {
	return &Handler{svc: svc, devices: devices, slipSecret: []byte(slipSecret)}
}

func actorFrom(r *http.Request) reservation.Actor {
	return reservation.Actor{
		UserID:  utils.GetUserIDFromRequest(r),
		IsAdmin: utils.IsAdminRequest(r),
	}
}

var statusByKind = map[reservation.Kind]int{
	reservation.KindValidation:          http.StatusBadRequest,
	reservation.KindNotFound:            http.StatusNotFound,
	reservation.KindInvalidTransition:   http.StatusConflict,
	reservation.KindTimeSlotConflict:    http.StatusConflict,
	reservation.KindNoDeviceAvailable:   http.StatusConflict,
	reservation.KindPermissionDenied:    http.StatusForbidden,
	reservation.KindCancellationExpired: http.StatusUnprocessableEntity,
	reservation.KindCheckInWindow:       http.StatusUnprocessableEntity,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind reservation.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	kind := reservation.KindOf(err)
	if kind == reservation.KindInternal {
		log.Printf("[Booking] %v", err)
	}
	if reservation.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	utils.RespondWithError(w, StatusFor(kind), string(kind), reservation.Message(err))
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeReservation(w http.ResponseWriter, code int, res *models.Reservation) {
	utils.RespondWithJSON(w, code, map[string]any{"reservation": res})
}

func invalidBody(w http.ResponseWriter) {
	utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), "invalid JSON body")
}

// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req reservation.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		invalidBody(w)
		return
	}
	res, err := h.svc.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusCreated, res)
}

// GET /api/reservations?status=&from=&to=&userId=&typeId=&page=&limit=
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	opts := utils.ParseQueryOptions(r)
	page, err := h.svc.List(r.Context(), actorFrom(r), models.ReservationFilter{
		Status:       models.ReservationStatus(q.Get("status")),
		UserID:       q.Get("userId"),
		DeviceTypeID: q.Get("typeId"),
		From:         q.Get("from"),
		To:           q.Get("to"),
		Page:         opts.Page,
		Limit:        opts.Limit,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}

// GET /api/reservations/:id
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.Get(r.Context(), actorFrom(r), ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

// POST /api/reservations/:id/approve
func (h *Handler) ApproveReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.Approve(r.Context(), actorFrom(r), ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

type bulkItem struct {
	ID          string              `json:"id"`
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// POST /api/reservations/approve-bulk {"ids": [...]}
func (h *Handler) ApproveBulk(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	if len(body.IDs) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), "ids is required")
		return
	}
	results := h.svc.ApproveBulk(r.Context(), actorFrom(r), body.IDs)
	items := make([]bulkItem, 0, len(results))
	for _, res := range results {
		item := bulkItem{ID: res.ID, Reservation: res.Reservation}
		if res.Err != nil {
			item.Error = string(reservation.KindOf(res.Err))
			item.Message = reservation.Message(res.Err)
		}
		items = append(items, item)
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"results": items})
}

// POST /api/reservations/:id/reject {"reason": "..."}
func (h *Handler) RejectReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	res, err := h.svc.Reject(r.Context(), actorFrom(r), ps.ByName("id"), body.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

// POST /api/reservations/:id/checkin {"paymentMethod": "cash", "paymentAmount": 1500}
func (h *Handler) CheckInReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var p reservation.Payment
	if err := decodeBody(r, &p); err != nil {
		invalidBody(w)
		return
	}
	res, err := h.svc.CheckIn(r.Context(), actorFrom(r), ps.ByName("id"), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

// POST /api/reservations/:id/noshow
func (h *Handler) NoShowReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.MarkNoShow(r.Context(), actorFrom(r), ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

// POST /api/reservations/:id/complete
func (h *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.Complete(r.Context(), actorFrom(r), ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

// POST /api/reservations/:id/cancel {"reason": "..."} (body optional)
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	res, err := h.svc.Cancel(r.Context(), actorFrom(r), ps.ByName("id"), strings.TrimSpace(body.Reason))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}
