// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/service"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler holds all HTTP handlers for the campus events API.
type Handler struct {
	events   *service.EventService
	regs     *service.RegistrationService
	payments *service.PaymentService
	checkins *service.CheckInService
}

// New constructs a Handler.
func New(events *service.EventService, regs *service.RegistrationService, payments *service.PaymentService, checkins *service.CheckInService) *Handler {
	return &Handler{events: events, regs: regs, payments: payments, checkins: checkins}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate reads the body into dst and checks its validate tags.
// It writes the 400 response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// errorStatus maps a service error to its HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, model.ErrConflict.Error()
	case errors.Is(err, model.ErrCapacityExceeded):
		return http.StatusConflict, model.ErrCapacityExceeded.Error()
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusBadRequest, model.ErrInvalidState.Error()
	case errors.Is(err, model.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, model.ErrPaymentNotCompleted.Error()
	case errors.Is(err, model.ErrInvalidPayload):
		return http.StatusBadRequest, model.ErrInvalidPayload.Error()
	case errors.Is(err, model.ErrNotRegistered):
		return http.StatusBadRequest, model.ErrNotRegistered.Error()
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, model.ErrUnauthorized.Error()
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, model.ErrForbidden.Error()
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, model.ErrUnavailable.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeServiceError logs unexpected failures and hides their details from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func actor(r *http.Request) model.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.events.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "event deleted"})
}

// ListEventRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.events.ListEventRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.Register(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /events/{id}/register
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.regs.Cancel(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "registration cancelled"})
}

// ListMyRegistrations handles GET /me/registrations
func (h *Handler) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.regs.ListMyRegistrations(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Payments ─────────────────────────────────────────────────────────────────

// CreatePaymentIntent handles POST /events/{id}/payment-intent
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.payments.CreateIntent(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// ConfirmPayment handles POST /events/{id}/confirm-payment
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	reg, err := h.payments.ConfirmPayment(r.Context(), actor(r), chi.URLParam(r, "id"), req.PaymentIntentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ─── Check-in ─────────────────────────────────────────────────────────────────

// GenerateCredential handles GET /checkin/{eventId}/credential
// With ?format=png the QR code is returned as an image instead of JSON.
func (h *Handler) GenerateCredential(w http.ResponseWriter, r *http.Request) {
	asPNG := r.URL.Query().Get("format") == "png"

	cred, err := h.checkins.GenerateCredential(r.Context(), chi.URLParam(r, "eventId"), !asPNG)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !asPNG {
		writeJSON(w, http.StatusOK, cred)
		return
	}

	png, err := h.checkins.RenderQR(cred)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ProcessCheckIn handles POST /checkin
func (h *Handler) ProcessCheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	reg, err := h.checkins.ProcessCheckIn(r.Context(), actor(r), req.Payload, req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// CheckInStats handles GET /checkin/{eventId}/stats
func (h *Handler) CheckInStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.checkins.Stats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
