package product

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes p in the shop API product shape. Price is a decimal string.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("color")
	e.Str(p.Color)
	e.FieldStart("size")
	e.Str(p.Size)
	e.FieldStart("category")
	if c := p.Category; c != nil {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(c.ID)
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("slug")
		e.Str(c.Slug)
		e.ObjEnd()
	} else {
		e.Null()
	}
	e.FieldStart("image")
	if p.Image != "" {
		e.Str(p.Image)
	} else {
		e.Null()
	}
	e.FieldStart("in_stock")
	e.Bool(p.InStock)
	if !p.CreatedAt.IsZero() {
		e.FieldStart("created_at")
		e.Str(p.CreatedAt.Format(time.RFC3339Nano))
	}
	e.ObjEnd()
}

// Decode reads a product in the shop API shape. Unknown fields are skipped,
// nullable strings become "", a missing in_stock means in stock, and price
// may be a JSON string or number.
func (p *Product) Decode(d *jx.Decoder) error {
	*p = Product{InStock: true}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "title":
			p.Title, err = decodeOptStr(d)
		case "description":
			p.Description, err = decodeOptStr(d)
		case "price":
			p.Price, err = DecodePrice(d)
		case "brand":
			p.Brand, err = decodeOptStr(d)
		case "color":
			p.Color, err = decodeOptStr(d)
		case "size":
			p.Size, err = decodeOptStr(d)
		case "image":
			p.Image, err = decodeOptStr(d)
		case "in_stock":
			if d.Next() == jx.Null {
				return d.Null()
			}
			p.InStock, err = d.Bool()
		case "created_at":
			var s string
			if s, err = decodeOptStr(d); err == nil && s != "" {
				p.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "category":
			p.Category, err = decodeCategory(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeCategory(d *jx.Decoder) (*Category, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var c Category
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "name":
			c.Name, err = decodeOptStr(d)
		case "slug":
			c.Slug, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeRawPrice reads a JSON string or number as text, without parsing it.
func DecodeRawPrice(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.New("price must be a number or string")
	}
}

// DecodePrice reads a non-negative price given as a JSON string or number.
func DecodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	raw, err := DecodeRawPrice(d)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsNegative() {
		return decimal.Zero, errors.Errorf("negative price %s", raw)
	}
	return price, nil
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
