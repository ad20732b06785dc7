package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aaroh-orders/internal/auth"
	"aaroh-orders/internal/logger"
	"aaroh-orders/internal/models"
	"aaroh-orders/internal/order"
	"aaroh-orders/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       log,
	}
}

// Routes mounts every order endpoint. The auth middleware runs outside this
// router, so every handler can rely on auth.Email being set.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.PlaceShopOrder)
	r.Post("/songs", h.PlaceSongOrder)
	r.Post("/enrollments", h.PlaceEnrollment)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/orders/{orderId}/verify", h.VerifyPayment)
	r.Post("/orders/{orderId}/retry", h.RetryGatewayOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/orders/{orderId}/ship", h.MarkShipped)
		r.Post("/orders/{orderId}/deliver", h.MarkDelivered)
		r.Post("/orders/{orderId}/cancel", h.AdminCancelOrder)
		r.Post("/songs/{orderId}/ready", h.MarkSongReady)
		r.Post("/songs/{orderId}/assets", h.UpdateSongAssets)
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) PlaceShopOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.ShopOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceShopOrder: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	orderData, err := h.OrderService.PlaceShopOrder(r.Context(), email, "", req)
	if err != nil {
		h.writeError(w, "PlaceShopOrder", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Order placed", models.NewOrderResponse(orderData)))
}

func (h *Handler) PlaceSongOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.SongOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceSongOrder: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	orderData, err := h.OrderService.PlaceSongOrder(r.Context(), email, "", req)
	if err != nil {
		h.writeError(w, "PlaceSongOrder", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Song order placed", models.NewOrderResponse(orderData)))
}

func (h *Handler) PlaceEnrollment(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.EnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceEnrollment: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	orderData, err := h.OrderService.PlaceEnrollment(r.Context(), email, "", req)
	if err != nil {
		h.writeError(w, "PlaceEnrollment", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Enrollment placed", models.NewOrderResponse(orderData)))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}

	orders, err := h.OrderService.ListOrders(r.Context(), email)
	if err != nil {
		h.writeError(w, "ListOrders", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.GetOrder(r.Context(), email, orderID, auth.IsAdmin(r.Context()))
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", orderData))
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var req models.VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("VerifyPayment: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body",
			"gateway_order_id, gateway_payment_id and signature are required"))
		return
	}

	orderData, err := h.OrderService.VerifyPayment(r.Context(), email, orderID, req)
	if err != nil {
		h.writeError(w, "VerifyPayment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment verified", orderData))
}

func (h *Handler) RetryGatewayOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.RetryGatewayOrder(r.Context(), email, orderID)
	if err != nil {
		h.writeError(w, "RetryGatewayOrder", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Gateway order created", models.NewOrderResponse(orderData)))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.CancelOrder(r.Context(), email, orderID, false)
	if err != nil {
		h.writeError(w, "CancelOrder", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", orderData))
}

func (h *Handler) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.CancelOrder(r.Context(), email, orderID, true)
	if err != nil {
		h.writeError(w, "AdminCancelOrder", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", orderData))
}

func (h *Handler) MarkShipped(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.MarkShipped(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "MarkShipped", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order shipped", orderData))
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.MarkDelivered(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "MarkDelivered", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order delivered", orderData))
}

func (h *Handler) MarkSongReady(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.MarkSongReady(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "MarkSongReady", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Song marked ready", orderData))
}

func (h *Handler) UpdateSongAssets(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		PosterURL    string `json:"poster_url"`
		PreviewURL   string `json:"preview_url"`
		FullAudioURL string `json:"full_audio_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateSongAssets: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	orderData, err := h.OrderService.UpdateSongAssets(r.Context(), orderID, req.PosterURL, req.PreviewURL, req.FullAudioURL)
	if err != nil {
		h.writeError(w, "UpdateSongAssets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Song assets updated", orderData))
}

// caller extracts the authenticated email or rejects the request.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := auth.Email(r.Context())
	if email == "" {
		h.writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "authentication required"))
		return "", false
	}
	return email, true
}

// writeError maps a service error to its HTTP response. Only the public
// message leaves the process; the internal detail goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var oe *order.OrderError
	if errors.As(err, &oe) {
		h.Logger.Error("API", fmt.Sprintf("%s: %s", op, oe.Internal))
		h.writeJSON(w, oe.StatusCode, utils.ErrorResponse("Request failed", oe.PublicMessage))
		return
	}
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Request failed", "internal error"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}
