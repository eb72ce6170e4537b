package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/apiclient"
	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/checkout"
	"github.com/xenking/kart-storefront/internal/receipt"
	"github.com/xenking/kart-storefront/internal/session"
	"github.com/xenking/kart-storefront/internal/storage/billyfs"
	"github.com/xenking/kart-storefront/internal/tokenstore"
)

// fakeShop is an in-memory shop API.
type fakeShop struct {
	mu     sync.Mutex
	orders [][]byte
	staff  bool
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	write := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
	authed := r.Header.Get("Authorization") == "Bearer good"
	f.mu.Lock()
	staff := f.staff
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/products/":
		write(http.StatusOK, `[{"id":1,"title":"Kart","price":"10.00"},{"id":2,"title":"Helmet","price":"5.00"}]`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/products/1/":
		write(http.StatusOK, `{"id":1,"title":"Kart","price":"10.00"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/products/2/":
		write(http.StatusOK, `{"id":2,"title":"Helmet","price":"5.00"}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/products/"):
		write(http.StatusNotFound, `{"detail":"Not found."}`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/products/":
		if !authed || !staff {
			write(http.StatusForbidden, `{"detail":"You do not have permission to perform this action."}`)
			return
		}
		write(http.StatusCreated, `{"id":3,"title":"Gloves","price":"4.50"}`)
	case r.URL.Path == "/auth/jwt/create/":
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"password":"secret"`) {
			write(http.StatusUnauthorized, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		write(http.StatusOK, `{"access":"good","refresh":"r"}`)
	case r.URL.Path == "/api/me/":
		if !authed {
			write(http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`)
			return
		}
		if staff {
			write(http.StatusOK, `{"id":1,"username":"admin","email":"","is_staff":true}`)
		} else {
			write(http.StatusOK, `{"id":2,"username":"bob","email":"","is_staff":false}`)
		}
	case r.Method == http.MethodPost && r.URL.Path == "/api/orders/":
		if !authed {
			write(http.StatusUnauthorized, `{"detail":"Authentication credentials were not provided."}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.orders = append(f.orders, body)
		f.mu.Unlock()
		write(http.StatusCreated, `{"id":77,"status":"new"}`)
	default:
		write(http.StatusNotFound, `{"detail":"Not found."}`)
	}
}

func (f *fakeShop) placed() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.orders...)
}

type env struct {
	shop *fakeShop
	srv  *httptest.Server
	cart *cart.Store
}

func newEnv(t *testing.T, staff bool) *env {
	t.Helper()
	ctx := context.Background()

	shop := &fakeShop{staff: staff}
	upstream := httptest.NewServer(shop)
	t.Cleanup(upstream.Close)

	store := billyfs.NewMemory()
	tokens := tokenstore.New(store)
	client, err := apiclient.New(upstream.URL, apiclient.Options{HTTPClient: upstream.Client(), Tokens: tokens})
	require.NoError(t, err)

	c := cart.New(ctx, store)
	sess := session.NewManager(tokens, client, nil)
	receipts := receipt.NewKVLog(store, 0)
	svc := checkout.NewService(c, client, sess, client, receipts, checkout.Options{})

	mux := http.NewServeMux()
	New(Deps{
		Catalog:  client,
		Creator:  client,
		Cart:     c,
		Session:  sess,
		Checkout: svc,
		Receipts: receipts,
	}).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{shop: shop, srv: srv, cart: c}
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	if len(data) > 0 && data[0] == '[' {
		var list []any
		require.NoError(t, json.Unmarshal(data, &list))
		out["items"] = list
	}
	return resp.StatusCode, out
}

func TestGateway_Catalog(t *testing.T) {
	e := newEnv(t, false)

	status, body := e.do(t, http.MethodGet, "/api/catalog?brand=Acme", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 2)

	status, body = e.do(t, http.MethodGet, "/api/catalog/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Kart", body["title"])
	assert.Equal(t, "10", body["price"])

	status, body = e.do(t, http.MethodGet, "/api/catalog/99", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Product not found.", body["message"])

	status, _ = e.do(t, http.MethodGet, "/api/catalog/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGateway_CartFlow(t *testing.T) {
	e := newEnv(t, false)

	status, _ := e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":1,"quantity":2}`)
	require.Equal(t, http.StatusOK, status)
	status, body := e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":2,"quantity":3}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "35.00", body["total"])
	assert.Equal(t, float64(5), body["count"])

	status, body = e.do(t, http.MethodPut, "/api/cart/items/2", `{"quantity":1}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "25.00", body["total"])

	status, body = e.do(t, http.MethodPut, "/api/cart/items/1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["lines"], 1)

	status, _ = e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":1,"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":404}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, http.MethodPost, "/api/cart/items", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodDelete, "/api/cart/items/2", "")
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, e.cart.Len())

	_, _ = e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":1}`)
	status, body = e.do(t, http.MethodDelete, "/api/cart", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.00", body["total"])
}

func TestGateway_CheckoutRequiresLogin(t *testing.T) {
	e := newEnv(t, false)
	_, _ = e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":1}`)

	status, body := e.do(t, http.MethodPost, "/api/checkout", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "You must sign in to continue.", body["message"])
	assert.Equal(t, 1, e.cart.Len())
}

func TestGateway_LoginCheckoutOrders(t *testing.T) {
	e := newEnv(t, false)

	status, body := e.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body["state"])

	status, body = e.do(t, http.MethodPost, "/api/session", `{"username":"bob","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid username or password.", body["message"])

	status, body = e.do(t, http.MethodPost, "/api/session", `{"username":"bob","password":"secret"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "authenticated", body["state"])

	status, body = e.do(t, http.MethodPost, "/api/checkout", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Your cart is empty.", body["message"])

	_, _ = e.do(t, http.MethodPost, "/api/cart/items", `{"product_id":1,"quantity":2}`)
	status, body = e.do(t, http.MethodPost, "/api/checkout", "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "77", body["order_id"])
	assert.Equal(t, "20.00", body["total"])
	assert.Zero(t, e.cart.Len())
	orders := e.shop.placed()
	require.Len(t, orders, 1)
	assert.JSONEq(t, `{"items_data":[{"product_id":1,"quantity":2}]}`, string(orders[0]))

	status, body = e.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["items"], 1)

	status, _ = e.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, status)
	_, body = e.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, "anonymous", body["state"])
}

func TestGateway_AdminGuards(t *testing.T) {
	const draft = `{"title":"Gloves","price":"4.50","category_id":""}`

	t.Run("Anonymous", func(t *testing.T) {
		e := newEnv(t, false)
		status, _ := e.do(t, http.MethodPost, "/api/admin/products", draft)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
	t.Run("NotStaff", func(t *testing.T) {
		e := newEnv(t, false)
		_, _ = e.do(t, http.MethodPost, "/api/session", `{"username":"bob","password":"secret"}`)
		status, body := e.do(t, http.MethodPost, "/api/admin/products", draft)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Insufficient privilege: an administrator account is required.", body["message"])
	})
	t.Run("Staff", func(t *testing.T) {
		e := newEnv(t, true)
		_, _ = e.do(t, http.MethodPost, "/api/session", `{"username":"admin","password":"secret"}`)

		status, body := e.do(t, http.MethodPost, "/api/admin/products", `{"title":"Gloves","price":"abc"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, body["message"], "price")

		status, body = e.do(t, http.MethodPost, "/api/admin/products", draft)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, float64(3), body["id"])

		status, body = e.do(t, http.MethodGet, "/api/admin/products", "")
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["items"], 2)
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &apiclient.Error{Status: 500}, want: http.StatusBadGateway},
		{err: &apiclient.Error{Message: "network error"}, want: http.StatusBadGateway},
		{err: &apiclient.Error{Status: 400}, want: http.StatusBadRequest},
		{err: &checkout.PriceChangedError{}, want: http.StatusConflict},
		{err: &checkout.ProductUnavailableError{}, want: http.StatusConflict},
		{err: checkout.ErrInProgress, want: http.StatusConflict},
		{err: cart.ErrQuantityTooLarge, want: http.StatusBadRequest},
		{err: io.EOF, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "%v", tt.err)
	}
}
