package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/cart"
	"github.com/vyrodovalexey/storefront-state/internal/checkout"
	"github.com/vyrodovalexey/storefront-state/internal/middleware"
	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/remote"
	"github.com/vyrodovalexey/storefront-state/internal/session"
	"github.com/vyrodovalexey/storefront-state/internal/shopper"
	"github.com/vyrodovalexey/storefront-state/internal/validation"
	"github.com/vyrodovalexey/storefront-state/internal/wishlist"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AntiAbuseTokenHeader carries an anti-abuse token for login and
// registration when the body does not.
const AntiAbuseTokenHeader = "X-Recaptcha-Token"

// Catalog is the read-only product surface served to the UI.
type Catalog interface {
	FetchProducts(ctx context.Context) []model.Product
	FetchProduct(ctx context.Context, id string) *model.Product
	FetchCategories(ctx context.Context) []model.Category
	FetchProductsByCategory(ctx context.Context, categoryID string, limit int) []model.Product
	SearchProducts(ctx context.Context, query string) []model.Product
}

// Shoppers resolves the store set of a client. The returned release
// function ends the caller's hold on the shopper.
type Shoppers interface {
	Acquire(ctx context.Context, clientID string) (*shopper.Shopper, func(), error)
}

// RESTOption configures a RESTHandler.
type RESTOption func(*RESTHandler)

// WithRecaptchaSiteKey sets the key served by GET /api/v1/recaptcha-config.
func WithRecaptchaSiteKey(key string) RESTOption {
	return func(h *RESTHandler) {
		h.recaptchaSiteKey = key
	}
}

// WithReadinessCheck sets the dependency probe behind GET /ready.
func WithReadinessCheck(check func(ctx context.Context) error) RESTOption {
	return func(h *RESTHandler) {
		h.ready = check
	}
}

// RESTHandler handles REST API requests for catalog reads and shopper
// stores.
type RESTHandler struct {
	shoppers         Shoppers
	catalog          Catalog
	recaptchaSiteKey string
	ready            func(ctx context.Context) error
	logger           *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(shoppers Shoppers, catalog Catalog, logger *zap.Logger, opts ...RESTOption) *RESTHandler {
	h := &RESTHandler{
		shoppers: shoppers,
		catalog:  catalog,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the public probe routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
}

// RegisterAPIRoutes registers the /api/v1 routes. The router is expected to
// carry the ClientID middleware.
func (h *RESTHandler) RegisterAPIRoutes(api *mux.Router) {
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}/products", h.ListCategoryProducts).Methods(http.MethodGet)
	api.HandleFunc("/search", h.Search).Methods(http.MethodGet)

	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.AddCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{productId}", h.SetCartItemQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{productId}", h.RemoveCartItem).Methods(http.MethodDelete)

	api.HandleFunc("/wishlist", h.GetWishlist).Methods(http.MethodGet)
	api.HandleFunc("/wishlist", h.AddWishlistItem).Methods(http.MethodPost)
	api.HandleFunc("/wishlist", h.ClearWishlist).Methods(http.MethodDelete)
	api.HandleFunc("/wishlist/toggle", h.ToggleWishlistItem).Methods(http.MethodPost)
	api.HandleFunc("/wishlist/{productId}", h.RemoveWishlistItem).Methods(http.MethodDelete)

	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/session/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/session/logout", h.Logout).Methods(http.MethodPost)

	api.HandleFunc("/checkout/summary", h.CheckoutSummary).Methods(http.MethodGet)
	api.HandleFunc("/checkout", h.PlaceOrder).Methods(http.MethodPost)

	api.HandleFunc("/recaptcha-config", h.RecaptchaConfig).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListProducts handles GET /api/v1/products requests.
func (h *RESTHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.catalog.FetchProducts(r.Context())))
}

// GetProduct handles GET /api/v1/products/{id} requests. The id may be a
// remote identifier or a slug.
func (h *RESTHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	product := h.catalog.FetchProduct(r.Context(), id)
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(product))
}

// ListCategories handles GET /api/v1/categories requests.
func (h *RESTHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.catalog.FetchCategories(r.Context())))
}

// ListCategoryProducts handles GET /api/v1/categories/{id}/products requests.
func (h *RESTHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	categoryID := mux.Vars(r)["id"]

	limit := remote.DefaultCategoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	products := h.catalog.FetchProductsByCategory(r.Context(), categoryID, limit)
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(products))
}

// Search handles GET /api/v1/search?q= requests.
func (h *RESTHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.catalog.SearchProducts(r.Context(), query)))
}

// GetCart handles GET /api/v1/cart requests.
func (h *RESTHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(cart.ViewOf(sh.Cart.State())))
}

// AddCartItem handles POST /api/v1/cart/items requests.
func (h *RESTHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input AddItemRequest
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	if err := sh.Cart.AddItem(r.Context(), input.ProductID, input.Quantity); err != nil {
		h.handleStoreError(w, err, "add cart item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(cart.ViewOf(sh.Cart.State())))
}

// SetCartItemQuantity handles PUT /api/v1/cart/items/{productId} requests.
// A quantity of zero or less removes the line.
func (h *RESTHandler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input SetQuantityRequest
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	if err := sh.Cart.SetQuantity(r.Context(), mux.Vars(r)["productId"], input.Quantity); err != nil {
		h.handleStoreError(w, err, "set cart item quantity")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(cart.ViewOf(sh.Cart.State())))
}

// RemoveCartItem handles DELETE /api/v1/cart/items/{productId} requests.
func (h *RESTHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	if err := sh.Cart.RemoveItem(r.Context(), mux.Vars(r)["productId"]); err != nil {
		h.handleStoreError(w, err, "remove cart item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(cart.ViewOf(sh.Cart.State())))
}

// ClearCart handles DELETE /api/v1/cart requests.
func (h *RESTHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	if err := sh.Cart.Clear(r.Context()); err != nil {
		h.handleStoreError(w, err, "clear cart")
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetWishlist handles GET /api/v1/wishlist requests.
func (h *RESTHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(wishlistResponse(sh.Wishlist)))
}

// AddWishlistItem handles POST /api/v1/wishlist requests.
func (h *RESTHandler) AddWishlistItem(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input model.WishlistItem
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	if err := sh.Wishlist.Add(r.Context(), input); err != nil {
		h.handleStoreError(w, err, "add wishlist item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(wishlistResponse(sh.Wishlist)))
}

// ToggleWishlistItem handles POST /api/v1/wishlist/toggle requests.
func (h *RESTHandler) ToggleWishlistItem(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input model.WishlistItem
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	added, err := sh.Wishlist.Toggle(r.Context(), input)
	if err != nil {
		h.handleStoreError(w, err, "toggle wishlist item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ToggleResponse{
		Added:    added,
		Wishlist: wishlistResponse(sh.Wishlist),
	}))
}

// RemoveWishlistItem handles DELETE /api/v1/wishlist/{productId} requests.
func (h *RESTHandler) RemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	if err := sh.Wishlist.Remove(r.Context(), mux.Vars(r)["productId"]); err != nil {
		h.handleStoreError(w, err, "remove wishlist item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(wishlistResponse(sh.Wishlist)))
}

// ClearWishlist handles DELETE /api/v1/wishlist requests.
func (h *RESTHandler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	if err := sh.Wishlist.Clear(r.Context()); err != nil {
		h.handleStoreError(w, err, "clear wishlist")
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetSession handles GET /api/v1/session requests.
func (h *RESTHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sh.Session.View()))
}

// Login handles POST /api/v1/session/login requests.
func (h *RESTHandler) Login(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input LoginRequest
	if !h.decode(w, r, &input) {
		return
	}

	ctx := session.ContextWithAntiAbuseToken(r.Context(), r.Header.Get(AntiAbuseTokenHeader))
	if err := sh.Session.Login(ctx, input.Email, input.Password, input.RecaptchaToken); err != nil {
		h.handleStoreError(w, err, "login")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sh.Session.View()))
}

// Register handles POST /api/v1/session/register requests.
func (h *RESTHandler) Register(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input session.Profile
	if !h.decode(w, r, &input) {
		return
	}

	ctx := session.ContextWithAntiAbuseToken(r.Context(), r.Header.Get(AntiAbuseTokenHeader))
	if err := sh.Session.Register(ctx, input); err != nil {
		h.handleStoreError(w, err, "register")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(sh.Session.View()))
}

// Logout handles POST /api/v1/session/logout requests.
func (h *RESTHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	if err := sh.Session.Logout(r.Context()); err != nil {
		h.handleStoreError(w, err, "logout")
		return
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sh.Session.View()))
}

// CheckoutSummary handles GET /api/v1/checkout/summary requests.
func (h *RESTHandler) CheckoutSummary(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sh.Checkout.Summary()))
}

// PlaceOrder handles POST /api/v1/checkout requests.
func (h *RESTHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	sh, release, ok := h.shopper(w, r)
	if !ok {
		return
	}
	defer release()

	var input checkout.Request
	if !h.decode(w, r, &input) {
		return
	}

	order, err := sh.Checkout.PlaceOrder(r.Context(), input)
	if err != nil {
		h.handleStoreError(w, err, "place order")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(order))
}

// RecaptchaConfig handles GET /api/v1/recaptcha-config requests.
func (h *RESTHandler) RecaptchaConfig(w http.ResponseWriter, _ *http.Request) {
	if h.recaptchaSiteKey == "" {
		h.logger.Error("recaptcha site key is not configured")
		h.writeError(w, http.StatusInternalServerError, "recaptcha is not configured")
		return
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(RecaptchaConfigResponse{SiteKey: h.recaptchaSiteKey}))
}

// shopper resolves and holds the store set of the request's client.
func (h *RESTHandler) shopper(w http.ResponseWriter, r *http.Request) (*shopper.Shopper, func(), bool) {
	sh, release, err := h.shoppers.Acquire(r.Context(), middleware.GetClientID(r.Context()))
	if err != nil {
		h.handleStoreError(w, err, "load shopper")
		return nil, nil, false
	}
	return sh, release, true
}

// decode reads a JSON request body into v.
func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeAndValidate reads a JSON request body into v and checks its
// validate tags.
func (h *RESTHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if !h.decode(w, r, v) {
		return false
	}
	if fields := validation.Struct(v); len(fields) > 0 {
		msg := validation.Join(fields)
		h.logger.Warn("validation failed", zap.String("reason", msg))
		h.writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	var validationErr *session.ValidationError
	var remoteErr *remote.RemoteError

	switch {
	case errors.Is(err, shopper.ErrInvalidClientID):
		h.writeError(w, http.StatusBadRequest, "invalid client ID")
	case errors.Is(err, cart.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, cart.ErrInvalidProductID), errors.Is(err, wishlist.ErrInvalidProductID):
		h.writeError(w, http.StatusBadRequest, "invalid product ID")
	case errors.Is(err, cart.ErrQuantityTooLarge):
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must not exceed %d", cart.MaxLineQuantity))
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validation.Join(validationErr.Fields))
	case errors.Is(err, checkout.ErrInvalidOrder):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrNotAuthenticated):
		h.writeError(w, http.StatusUnauthorized, "login required")
	case errors.Is(err, checkout.ErrEmptyCart):
		h.writeError(w, http.StatusConflict, "cart is empty")
	case errors.As(err, &remoteErr):
		h.writeRemoteError(w, remoteErr, operation)
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeRemoteError passes remote client errors through with their message.
// Remote server and transport failures become 502.
func (h *RESTHandler) writeRemoteError(w http.ResponseWriter, err *remote.RemoteError, operation string) {
	status := http.StatusBadGateway
	if err.Status >= http.StatusBadRequest && err.Status < http.StatusInternalServerError {
		status = err.Status
	} else if err.Status == http.StatusOK {
		// success:false in a 200 envelope
		status = http.StatusUnprocessableEntity
	}

	msg := err.Message
	if msg == "" {
		msg = "remote service unavailable"
	}
	if status == http.StatusBadGateway {
		h.logger.Error("remote call failed", zap.String("operation", operation), zap.Error(err))
	}
	h.writeError(w, status, msg)
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}

func wishlistResponse(s *wishlist.Store) WishlistResponse {
	items := s.Items()
	if items == nil {
		items = []model.WishlistItem{}
	}
	return WishlistResponse{Items: items, Count: len(items)}
}
