// catalog/server.go

package catalog

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

//go:embed seed.json
var defaultSeed []byte

// Seed is the document the fake API serves from.
type Seed struct {
	Products []domain.Product `json:"products"`
	Stock    []domain.Stock   `json:"stock"`
}

// LoadSeed reads a seed document from path, or the built-in one when path is empty.
func LoadSeed(path string) (Seed, error) {
	data := defaultSeed
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return Seed{}, errors.Wrap(err, "failed to read seed file")
		}
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, errors.Wrap(err, "failed to parse seed")
	}
	return seed, nil
}

// Server serves products and stock levels over HTTP.
type Server struct {
	mu       sync.RWMutex
	products map[int]domain.Product
	stock    map[int]domain.Stock

	router *mux.Router
	log    logrus.FieldLogger
}

// NewServer indexes seed and registers the routes.
func NewServer(seed Seed, log logrus.FieldLogger) *Server {
	s := &Server{
		products: make(map[int]domain.Product, len(seed.Products)),
		stock:    make(map[int]domain.Stock, len(seed.Stock)),
		router:   mux.NewRouter(),
		log:      log,
	}
	for _, p := range seed.Products {
		s.products[p.ID] = p
	}
	for _, st := range seed.Stock {
		s.stock[st.ProductID] = st
	}

	s.router.Use(otelmux.Middleware("catalogservice"))
	s.router.HandleFunc("/products", s.listProducts).Methods(http.MethodGet)
	s.router.HandleFunc("/products/{id:[0-9]+}", s.getProduct).Methods(http.MethodGet)
	s.router.HandleFunc("/stock/{id:[0-9]+}", s.getStock).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetStock changes the available amount for a product.
func (s *Server) SetStock(productID, amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] = domain.Stock{ProductID: productID, Amount: amount}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	s.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.RLock()
	p, ok := s.products[id]
	s.mu.RUnlock()

	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) getStock(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.RLock()
	st, ok := s.stock[id]
	s.mu.RUnlock()

	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}
