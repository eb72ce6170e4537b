package gateway

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/checkout"
	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/receipt"
	"github.com/xenking/kart-storefront/internal/screen"
	"github.com/xenking/kart-storefront/internal/session"
)

func encodeUser(e *jx.Encoder, u *auth.User) {
	if u == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("username")
	e.Str(u.Username)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("is_staff")
	e.Bool(u.IsStaff)
	e.ObjEnd()
}

func (h *Handler) writeSession(w http.ResponseWriter, status int) {
	m := h.deps.Session
	state, user := m.State(), m.User()
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("state")
		e.Str(state.String())
		e.FieldStart("user")
		encodeUser(e, user)
		e.ObjEnd()
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Session.Bootstrap(r.Context()); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeSession(w, http.StatusOK)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var username, password string
	err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "username":
			username, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	if username == "" || password == "" {
		h.fail(r.Context(), w, badRequest("username and password are required"))
		return
	}
	if _, err := h.deps.Session.Login(r.Context(), username, password); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeSession(w, http.StatusOK)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Session.Logout(r.Context()); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeProducts(e *jx.Encoder, items []product.Product) {
	e.ArrStart()
	for _, p := range items {
		p.Encode(e)
	}
	e.ArrEnd()
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := product.Filter{
		Search: q.Get("search"),
		Brand:  q.Get("brand"),
		Color:  q.Get("color"),
		Size:   q.Get("size"),
	}
	items, err := h.deps.Catalog.ListProducts(r.Context(), f)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, items) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	p, err := h.deps.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Encode)
}

func encodeCart(e *jx.Encoder, s cart.Snapshot) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range s.Lines {
		e.ObjStart()
		e.FieldStart("product")
		l.Product.Encode(e)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("subtotal")
		e.Str(l.Subtotal().StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Str(s.Total.StringFixed(2))
	e.FieldStart("count")
	e.Int(s.Count)
	e.ObjEnd()
}

func (h *Handler) writeCart(w http.ResponseWriter) {
	snap := h.deps.Cart.Snapshot()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, snap) })
}

func (h *Handler) getCart(w http.ResponseWriter, _ *http.Request) {
	h.writeCart(w)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var (
		id       int64
		quantity = 1
	)
	err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			id, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	if id < 1 {
		h.fail(r.Context(), w, badRequest("product_id is required"))
		return
	}
	if quantity < 1 {
		h.fail(r.Context(), w, cart.ErrInvalidQuantity)
		return
	}

	// The cart keeps the snapshot fetched now.
	p, err := h.deps.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	if err := h.deps.Cart.Add(r.Context(), *p, quantity); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeCart(w)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	var (
		quantity int
		hasQty   bool
	)
	err = readBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		hasQty = true
		var err error
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	if !hasQty {
		h.fail(r.Context(), w, badRequest("quantity is required"))
		return
	}
	if err := h.deps.Cart.Update(r.Context(), id, quantity); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeCart(w)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	if err := h.deps.Cart.Remove(r.Context(), id); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeCart(w)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Cart.Clear(r.Context()); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeCart(w)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Checkout.Checkout(r.Context())
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order_id")
		e.Str(res.OrderID)
		e.FieldStart("total")
		e.Str(res.Total.StringFixed(2))
		e.FieldStart("items")
		e.Int(res.Items)
		e.ObjEnd()
	})
}

func encodeReceipt(e *jx.Encoder, rc receipt.Receipt) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(rc.OrderID)
	e.FieldStart("total")
	e.Str(rc.Total.StringFixed(2))
	e.FieldStart("items")
	e.Int(rc.Items)
	e.FieldStart("placed_at")
	e.Str(rc.PlacedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Receipts.List(r.Context())
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, rc := range list {
			encodeReceipt(e, rc)
		}
		e.ArrEnd()
	})
}

// requireStaff resolves the session first, so a gateway started offline
// still gates on the latest token.
func (h *Handler) requireStaff(r *http.Request) error {
	if err := h.deps.Session.Bootstrap(r.Context()); err != nil {
		return err
	}
	if !h.deps.Session.Resolved() {
		return screen.ErrSessionPending
	}
	return h.deps.Session.Authorize(true)
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.requireStaff(r); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.listProducts(w, r)
}

func decodeDraft(r *http.Request) (product.Draft, error) {
	var d product.Draft
	err := readBody(r, func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "title":
			d.Title, err = dec.Str()
		case "description":
			d.Description, err = dec.Str()
		case "price":
			d.Price, err = product.DecodeRawPrice(dec)
		case "brand":
			d.Brand, err = dec.Str()
		case "color":
			d.Color, err = dec.Str()
		case "size":
			d.Size, err = dec.Str()
		case "category_id":
			switch dec.Next() {
			case jx.Null:
				err = dec.Null()
			case jx.Number:
				var n jx.Num
				n, err = dec.Num()
				d.CategoryID = n.String()
			default:
				d.CategoryID, err = dec.Str()
			}
		default:
			return dec.Skip()
		}
		return err
	})
	return d, err
}

func (h *Handler) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.requireStaff(r); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	draft, err := decodeDraft(r)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	in, err := draft.Validate()
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	p, err := h.deps.Creator.CreateProduct(r.Context(), in)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.Encode)
}

var (
	_ checkout.Session = (*session.Manager)(nil)
	_ screen.Guard     = (*session.Manager)(nil)
)
