package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"

	appkg "github.com/xenking/kart-storefront/internal/app"
	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/loadstate"
	"github.com/xenking/kart-storefront/internal/screen"
	"github.com/xenking/kart-storefront/internal/tokenstore"
)

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// failedError carries a message a screen already rendered.
type failedError struct {
	msg string
}

func (e *failedError) Error() string { return e.msg }

func message(err error) string {
	var f *failedError
	if errors.As(err, &f) {
		return f.msg
	}
	return screen.Message(err)
}

// settle turns a finished screen load into an error when it failed.
func settle[T any](s loadstate.Snapshot[T]) (T, error) {
	if s.Status == loadstate.Failed {
		var zero T
		return zero, &failedError{msg: s.Message}
	}
	return s.Value, nil
}

type cli struct {
	sf  *appkg.Storefront
	out io.Writer
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	name, rest := args[0], args[1:]
	switch name {
	case "products":
		return c.products(ctx, rest)
	case "product":
		return c.product(ctx, rest)
	case "cart":
		return c.cart(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		if err := c.sf.Session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Signed out.")
		return nil
	case "whoami":
		return c.whoami(ctx)
	case "checkout":
		return c.checkout(ctx)
	case "orders":
		return c.orders(ctx)
	case "admin":
		return c.admin(ctx, rest)
	default:
		return usagef("unknown command %q", name)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, usagef("invalid product id %q", s)
	}
	return id, nil
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usagef("invalid quantity %q", s)
	}
	return n, nil
}

func (c *cli) table(fn func(w *tabwriter.Writer)) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fn(w)
	_ = w.Flush()
}

func (c *cli) printProducts(items []product.Product) {
	if len(items) == 0 {
		fmt.Fprintln(c.out, "No products found.")
		return
	}
	c.table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tTITLE\tBRAND\tPRICE\tSTOCK")
		for _, p := range items {
			stock := "in stock"
			if !p.InStock {
				stock = "out of stock"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Brand, p.Price.StringFixed(2), stock)
		}
	})
}

func (c *cli) products(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	var f product.Filter
	fs.StringVar(&f.Search, "search", "", "full-text search")
	fs.StringVar(&f.Brand, "brand", "", "brand")
	fs.StringVar(&f.Color, "color", "", "color")
	fs.StringVar(&f.Size, "size", "", "size")
	if err := fs.Parse(args); err != nil {
		return usagef("products: %v", err)
	}

	items, err := settle(screen.NewCatalog(c.sf.Client).Load(ctx, f))
	if err != nil {
		return err
	}
	c.printProducts(items)
	return nil
}

func (c *cli) product(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usagef("product: missing id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("product", flag.ContinueOnError)
	add := fs.Int("add", 0, "add this many units to the cart")
	if err := fs.Parse(args[1:]); err != nil {
		return usagef("product: %v", err)
	}

	detail := screen.NewProductDetail(c.sf.Client, c.sf.Cart)
	p, err := settle(detail.Open(ctx, id))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (#%d)\n", p.Title, p.ID)
	if p.Description != "" {
		fmt.Fprintln(c.out, p.Description)
	}
	fmt.Fprintf(c.out, "Price: %s\n", p.Price.StringFixed(2))
	for _, attr := range []struct{ name, value string }{
		{"Brand", p.Brand},
		{"Color", p.Color},
		{"Size", p.Size},
	} {
		if attr.value != "" {
			fmt.Fprintf(c.out, "%s: %s\n", attr.name, attr.value)
		}
	}
	if p.Category != nil {
		fmt.Fprintf(c.out, "Category: %s\n", p.Category.Name)
	}
	if !p.InStock {
		fmt.Fprintln(c.out, "Out of stock.")
	}

	if *add > 0 {
		if err := c.sf.Cart.Add(ctx, *p, *add); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Added to cart.")
	}
	return nil
}

func (c *cli) printCart() {
	snap := c.sf.Cart.Snapshot()
	if len(snap.Lines) == 0 {
		fmt.Fprintln(c.out, "Your cart is empty.")
		return
	}
	c.table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tTITLE\tPRICE\tQTY\tSUBTOTAL")
		for _, l := range snap.Lines {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				l.Product.ID, l.Product.Title, l.Product.Price.StringFixed(2), l.Quantity, l.Subtotal().StringFixed(2))
		}
	})
	fmt.Fprintf(c.out, "Items: %d  Total: %s\n", snap.Count, snap.Total.StringFixed(2))
}

func (c *cli) cart(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.printCart()
		return nil
	}

	var err error
	switch args[0] {
	case "add":
		if len(args) < 2 {
			return usagef("cart add: missing id")
		}
		id, perr := parseID(args[1])
		if perr != nil {
			return perr
		}
		quantity := 1
		if len(args) > 2 {
			if quantity, perr = parseQuantity(args[2]); perr != nil {
				return perr
			}
		}
		if quantity < 1 {
			return cart.ErrInvalidQuantity
		}
		// The cart stores the product as it is now.
		p, gerr := c.sf.Client.GetProduct(ctx, id)
		if gerr != nil {
			return gerr
		}
		err = c.sf.Cart.Add(ctx, *p, quantity)
	case "set":
		if len(args) < 3 {
			return usagef("cart set: need id and quantity")
		}
		id, perr := parseID(args[1])
		if perr != nil {
			return perr
		}
		quantity, perr := parseQuantity(args[2])
		if perr != nil {
			return perr
		}
		err = c.sf.Cart.Update(ctx, id, quantity)
	case "rm":
		if len(args) < 2 {
			return usagef("cart rm: missing id")
		}
		id, perr := parseID(args[1])
		if perr != nil {
			return perr
		}
		err = c.sf.Cart.Remove(ctx, id)
	case "clear":
		err = c.sf.Cart.Clear(ctx)
	default:
		return usagef("unknown cart command %q", args[0])
	}
	if err != nil {
		return err
	}
	c.printCart()
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (default $SHOP_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return usagef("login: %v", err)
	}
	if *password == "" {
		*password = os.Getenv("SHOP_PASSWORD")
	}

	u, err := settle(screen.NewLogin(c.sf.Session).Submit(ctx, *username, *password))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Signed in as %s.\n", u.Username)
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	if err := c.sf.Session.Bootstrap(ctx); err != nil {
		return err
	}
	u := c.sf.Session.User()
	if u == nil {
		fmt.Fprintln(c.out, "Not signed in.")
		return nil
	}
	role := "customer"
	if u.IsStaff {
		role = "administrator"
	}
	fmt.Fprintf(c.out, "%s (%s)\n", u.Username, role)

	token, ok, err := c.sf.Tokens.Get(ctx)
	if err != nil || !ok {
		return err
	}
	if info, ok := tokenstore.Inspect(token); ok && !info.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "Token expires %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (c *cli) checkout(ctx context.Context) error {
	if err := c.sf.Session.Bootstrap(ctx); err != nil {
		return err
	}
	res, err := settle(screen.NewCheckout(c.sf.Checkout).Submit(ctx))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order #%s placed: %d items, total %s.\n", res.OrderID, res.Items, res.Total.StringFixed(2))
	return nil
}

func (c *cli) orders(ctx context.Context) error {
	list, err := c.sf.Receipts.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No orders placed from this client.")
		return nil
	}
	c.table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ORDER\tPLACED\tITEMS\tTOTAL")
		for _, r := range list {
			fmt.Fprintf(w, "#%s\t%s\t%d\t%s\n", r.OrderID, r.PlacedAt.Local().Format(time.DateTime), r.Items, r.Total.StringFixed(2))
		}
	})
	return nil
}

func (c *cli) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usagef("admin: missing command")
	}
	if err := c.sf.Session.Bootstrap(ctx); err != nil {
		return err
	}
	s := screen.NewAdmin(c.sf.Session, c.sf.Client, c.sf.Client)

	switch args[0] {
	case "products":
		snap, err := s.Refresh(ctx)
		if err != nil {
			return &failedError{msg: snap.Message}
		}
		c.printProducts(snap.Value)
		return nil
	case "create":
		fs := flag.NewFlagSet("admin create", flag.ContinueOnError)
		var d product.Draft
		fs.StringVar(&d.Title, "title", "", "title")
		fs.StringVar(&d.Description, "description", "", "description")
		fs.StringVar(&d.Price, "price", "", "price, e.g. 12.50")
		fs.StringVar(&d.Brand, "brand", "", "brand")
		fs.StringVar(&d.Color, "color", "", "color")
		fs.StringVar(&d.Size, "size", "", "size")
		fs.StringVar(&d.CategoryID, "category", "", "category id")
		if err := fs.Parse(args[1:]); err != nil {
			return usagef("admin create: %v", err)
		}
		snap, err := s.Create(ctx, d)
		if err != nil {
			return &failedError{msg: snap.Message}
		}
		fmt.Fprintf(c.out, "Created product #%d %s.\n", snap.Value.ID, snap.Value.Title)
		return nil
	default:
		return usagef("unknown admin command %q", args[0])
	}
}
