package cart

import (
	"bytes"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DeserializationError reports persisted cart data that could not be read.
// Store recovers from it by starting empty; it is never returned to callers
// of the Store methods.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return "decode persisted cart: " + e.Err.Error()
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// Encode serializes lines as [{"product": {...}, "quantity": N}], keeping
// the product in the same shape the API serves it.
func Encode(lines []Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product")
		l.Product.Encode(&e)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// Decode parses data produced by Encode. Errors are *DeserializationError.
func Decode(data []byte) ([]Line, error) {
	data = bytes.TrimSpace(data)
	d := jx.DecodeBytes(data)
	if tt := d.Next(); tt != jx.Array {
		return nil, &DeserializationError{Err: errors.Errorf("expected array, got %s", tt)}
	}
	raw, err := d.Raw()
	if err != nil {
		return nil, &DeserializationError{Err: err}
	}
	if len(raw) != len(data) {
		return nil, &DeserializationError{Err: errors.New("trailing data after cart")}
	}
	d = jx.DecodeBytes(raw)

	var lines []Line
	err = d.Arr(func(d *jx.Decoder) error {
		var (
			l          Line
			hasProduct bool
		)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "product":
				hasProduct = true
				if err := l.Product.Decode(d); err != nil {
					return errors.Wrap(err, "product")
				}
				return nil
			case "quantity":
				q, err := d.Int()
				if err != nil {
					return errors.Wrap(err, "quantity")
				}
				l.Quantity = q
				return nil
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if !hasProduct {
			return errors.New("line has no product")
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, &DeserializationError{Err: err}
	}
	return lines, nil
}
