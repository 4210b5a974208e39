// services/cart_handler.go

package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/norun9/rocketshoes-cart/cart"
	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/norun9/rocketshoes-cart/notify"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// CartHandler exposes the cart over HTTP.
type CartHandler struct {
	cart   cart.Handle
	log    logrus.FieldLogger
	router *mux.Router
}

type cartResponse struct {
	Items   domain.Cart `json:"items"`
	Size    int         `json:"size"`
	Total   float64     `json:"total"`
	Outcome string      `json:"outcome,omitempty"`
	Message string      `json:"message,omitempty"`
}

type updateAmountRequest struct {
	Amount *int `json:"amount"`
}

// NewCartHandler registers the cart routes. Notifications raised while
// serving a request are echoed in its response when the container's notifier
// includes notify.ContextRecorder.
func NewCartHandler(h cart.Handle, log logrus.FieldLogger) *CartHandler {
	s := &CartHandler{
		cart:   h,
		log:    log,
		router: mux.NewRouter(),
	}

	s.router.Use(otelmux.Middleware("cartservice"))
	s.router.Use(s.logHandler)
	s.router.HandleFunc("/cart", s.getCart).Methods(http.MethodGet)
	s.router.HandleFunc("/cart", s.clearCart).Methods(http.MethodDelete)
	s.router.HandleFunc("/cart/events", s.streamCart).Methods(http.MethodGet)
	s.router.HandleFunc("/cart/items/{productId}", s.addProduct).Methods(http.MethodPost)
	s.router.HandleFunc("/cart/items/{productId}", s.updateProductAmount).Methods(http.MethodPut)
	s.router.HandleFunc("/cart/items/{productId}", s.removeProduct).Methods(http.MethodDelete)
	return s
}

// ServeHTTP implements http.Handler.
func (s *CartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, newCartResponse(s.cart.Cart()))
}

func (s *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.cart.Clear(r.Context()))
}

func (s *CartHandler) addProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	s.respond(w, r, s.cart.AddProduct(r.Context(), id))
}

func (s *CartHandler) removeProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	s.respond(w, r, s.cart.RemoveProduct(r.Context(), id))
}

func (s *CartHandler) updateProductAmount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}

	var req updateAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == nil {
		s.writeError(w, r, http.StatusBadRequest, "body must be {\"amount\": <integer>}")
		return
	}
	s.respond(w, r, s.cart.UpdateProductAmount(r.Context(), id, *req.Amount))
}

// streamCart sends the cart as server-sent events every time it changes.
func (s *CartHandler) streamCart(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for c := range s.cart.Subscribe(r.Context()) {
		data, err := json.Marshal(newCartResponse(c))
		if err != nil {
			s.log.WithError(err).Error("failed to encode cart event")
			return
		}
		if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *CartHandler) productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["productId"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "productId must be an integer")
		return 0, false
	}
	return id, true
}

// respond maps an outcome to a status and returns the current cart.
func (s *CartHandler) respond(w http.ResponseWriter, r *http.Request, outcome cart.Outcome) {
	resp := newCartResponse(s.cart.Cart())
	resp.Outcome = outcome.String()
	if rec, ok := notify.RecorderFrom(r.Context()); ok {
		resp.Message, _ = rec.Last()
	}
	s.writeJSON(w, r, statusFor(outcome), resp)
}

func statusFor(outcome cart.Outcome) int {
	switch outcome {
	case cart.OK, cart.Ignored:
		return http.StatusOK
	case cart.OutOfStock:
		return http.StatusConflict
	case cart.NotFound:
		return http.StatusNotFound
	case cart.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newCartResponse(c domain.Cart) cartResponse {
	return cartResponse{
		Items: c,
		Size:  c.Size(),
		Total: c.Total(),
	}
}

func (s *CartHandler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, map[string]string{"message": message})
}

func (s *CartHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLogger(r, s.log).WithError(err).Warn("failed to write response")
	}
}
