// Package gateway exposes the storefront over a local JSON HTTP API, so a
// browser front end can drive the same cart, session and checkout the CLI
// uses.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/apiclient"
	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/checkout"
	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/receipt"
	"github.com/xenking/kart-storefront/internal/screen"
	"github.com/xenking/kart-storefront/internal/session"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

const maxRequestBody = 1 << 20

// BadRequestError reports a malformed request body or parameter.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

// Deps are the components the gateway serves.
type Deps struct {
	Catalog  product.Catalog
	Creator  product.Creator
	Cart     *cart.Store
	Session  *session.Manager
	Checkout *checkout.Service
	Receipts receipt.Log
	Logger   *zap.Logger
}

// Handler serves the gateway routes.
type Handler struct {
	deps Deps
}

// New creates a Handler. A nil Logger disables logging.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{deps: deps}
}

// Register adds the gateway routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", h.getSession)
	mux.HandleFunc("POST /api/session", h.login)
	mux.HandleFunc("DELETE /api/session", h.logout)

	mux.HandleFunc("GET /api/catalog", h.listProducts)
	mux.HandleFunc("GET /api/catalog/{id}", h.getProduct)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/items", h.addItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.updateItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeItem)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)

	mux.HandleFunc("POST /api/checkout", h.checkout)
	mux.HandleFunc("GET /api/orders", h.listOrders)

	mux.HandleFunc("GET /api/admin/products", h.adminListProducts)
	mux.HandleFunc("POST /api/admin/products", h.adminCreateProduct)
}

// statusOf maps an error onto the gateway status code.
func statusOf(err error) int {
	var (
		badReq *BadRequestError
		apiErr *apiclient.Error
		valErr *product.ValidationError
		pce    *checkout.PriceChangedError
		pue    *checkout.ProductUnavailableError
	)
	switch {
	case errors.As(err, &badReq),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrQuantityTooLarge),
		errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBadCredentials),
		errors.Is(err, auth.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pce), errors.As(err, &pue), errors.Is(err, checkout.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, screen.ErrSessionPending):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := screen.Message(err)
	if status >= http.StatusInternalServerError {
		zctx.From(ctx).Warn("Request failed", zap.Int("status", status), zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	httpmiddleware.WriteError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody decodes the JSON object body field by field.
func readBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}
