package product

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
)

// Price column limits of the shop API (NUMERIC(10, 2)).
const (
	priceDigits   = 10
	priceDecimals = 2
)

// Draft is the raw admin form input for a new product. Price and
// CategoryID hold the text as typed.
type Draft struct {
	Title       string
	Description string
	Price       string
	Brand       string
	Color       string
	Size        string
	CategoryID  string
}

// NewProduct is a validated Draft, ready to be sent to the API.
type NewProduct struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Brand       string
	Color       string
	Size        string
	// CategoryID is zero when no category was given.
	CategoryID int64
}

// ValidationError lists every form field that failed validation.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid product: ")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Name, f.Error)
	}
	return b.String()
}

var (
	titleRule = validate.String{
		MinLength:    1,
		MinLengthSet: true,
		MaxLength:    255,
		MaxLengthSet: true,
	}
	attrRule = validate.String{
		MaxLength:    50,
		MaxLengthSet: true,
	}
	categoryRule = validate.Int{
		Min:    1,
		MinSet: true,
	}
)

// Validate checks the draft and converts it. It returns a *ValidationError
// describing all failing fields at once.
func (d Draft) Validate() (NewProduct, error) {
	var (
		failures []validate.FieldError
		out      = NewProduct{
			Title:       strings.TrimSpace(d.Title),
			Description: d.Description,
			Brand:       strings.TrimSpace(d.Brand),
			Color:       strings.TrimSpace(d.Color),
			Size:        strings.TrimSpace(d.Size),
		}
	)
	fail := func(name string, err error) {
		failures = append(failures, validate.FieldError{Name: name, Error: err})
	}

	if err := titleRule.Validate(out.Title); err != nil {
		fail("title", err)
	}
	for _, f := range []struct{ name, value string }{
		{"brand", out.Brand},
		{"color", out.Color},
		{"size", out.Size},
	} {
		if err := attrRule.Validate(f.value); err != nil {
			fail(f.name, err)
		}
	}

	price, err := parsePrice(d.Price)
	if err != nil {
		fail("price", err)
	}
	out.Price = price

	if raw := strings.TrimSpace(d.CategoryID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		switch {
		case err != nil:
			fail("category_id", fmt.Errorf("%q is not an integer", raw))
		default:
			if err := categoryRule.Validate(id); err != nil {
				fail("category_id", err)
			}
			out.CategoryID = id
		}
	}

	if len(failures) > 0 {
		return NewProduct{}, &ValidationError{Fields: failures}
	}
	return out, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, validate.ErrFieldRequired
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", raw)
	}
	if p.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}
	if !p.Equal(p.Round(priceDecimals)) {
		return decimal.Zero, fmt.Errorf("at most %d decimal places", priceDecimals)
	}
	if len(p.Shift(priceDecimals).Truncate(0).String()) > priceDigits {
		return decimal.Zero, fmt.Errorf("at most %d digits", priceDigits)
	}
	return p, nil
}
