package booking

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gameplace/models"
	"gameplace/reservation"
	"gameplace/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

var ErrInvalidSlip = errors.New("invalid slip payload")

func slipSignature(secret []byte, data string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// SignSlip returns the QR payload number|id|signature for a reservation.
func SignSlip(secret []byte, number, id string) string {
	data := fmt.Sprintf("%s|%s", number, id)
	return fmt.Sprintf("%s|%s", data, slipSignature(secret, data))
}

// VerifySlip checks a scanned payload and returns the reservation it names.
func VerifySlip(secret []byte, payload string) (number, id string, err error) {
	parts := strings.Split(strings.TrimSpace(payload), "|")
	if len(parts) != 3 {
		return "", "", ErrInvalidSlip
	}
	number, id = parts[0], parts[1]
	if !reservation.ValidNumber(number) || id == "" {
		return "", "", ErrInvalidSlip
	}
	expected := slipSignature(secret, number+"|"+id)
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return "", "", ErrInvalidSlip
	}
	return number, id, nil
}

// RenderSlip draws the printable reservation slip with its QR code.
func RenderSlip(res *models.Reservation, payload string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Reservation Slip")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		"Number: " + res.ReservationNumber,
		"Date: " + res.Date,
		fmt.Sprintf("Time: %02d:00 - %02d:00", res.TimeSlot.StartHour, res.TimeSlot.EndHour),
		"Status: " + string(res.Status),
	}
	if res.DeviceID != "" {
		lines = append(lines, "Device: "+res.DeviceID)
	}
	for _, l := range lines {
		pdf.Cell(0, 10, l)
		pdf.Ln(8)
	}

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 90, 20, 45, 45, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// GET /api/reservations/:id/slip
func (h *Handler) PrintSlip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.Get(r.Context(), actorFrom(r), ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if res.Status != models.StatusApproved {
		utils.RespondWithError(w, http.StatusConflict, string(reservation.KindInvalidTransition),
			fmt.Sprintf("slips are issued for approved reservations, this one is %s", res.Status))
		return
	}
	pdf, err := RenderSlip(res, SignSlip(h.slipSecret, res.ReservationNumber, res.ID))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=slip-"+res.ReservationNumber+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// POST /api/checkin/scan {"payload": "...", "paymentMethod": "cash", "paymentAmount": 0}
func (h *Handler) ScanCheckIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Payload string `json:"payload"`
		reservation.Payment
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w)
		return
	}
	number, id, err := VerifySlip(h.slipSecret, body.Payload)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), err.Error())
		return
	}
	actor := actorFrom(r)
	found, err := h.svc.GetByNumber(r.Context(), actor, number)
	if err != nil {
		writeErr(w, err)
		return
	}
	if found.ID != id {
		utils.RespondWithError(w, http.StatusBadRequest, string(reservation.KindValidation), ErrInvalidSlip.Error())
		return
	}
	res, err := h.svc.CheckIn(r.Context(), actor, id, body.Payment)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}
