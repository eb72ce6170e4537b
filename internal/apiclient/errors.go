package apiclient

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Error is a failed API call. Status is the HTTP status code, or 0 when the
// request never got a response.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Status == 0:
		return e.Message
	default:
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps 401 onto auth.ErrAuthRequired and 403 onto auth.ErrForbidden.
func (e *Error) Is(target error) bool {
	switch target {
	case auth.ErrAuthRequired:
		return e.Status == 401
	case auth.ErrForbidden:
		return e.Status == 403
	}
	return false
}

// Network reports whether the request failed before any response arrived.
func (e *Error) Network() bool {
	return e.Status == 0
}

func newStatusError(status int, body []byte) *Error {
	msg := errorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Status: status, Message: msg}
}

// errorMessage extracts a readable message from a Django REST Framework
// error body: {"detail": "..."}, {"non_field_errors": [...]},
// {"field": ["..."]}, or a bare list of strings.
func errorMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	switch d.Next() {
	case jx.Object:
		var detail, nonField, field string
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			msg, err := firstString(d)
			if err != nil || msg == "" {
				return err
			}
			switch string(key) {
			case "detail":
				detail = msg
			case "non_field_errors":
				nonField = msg
			default:
				if field == "" {
					field = string(key) + ": " + msg
				}
			}
			return nil
		})
		if err != nil {
			return ""
		}
		for _, m := range []string{detail, nonField, field} {
			if m != "" {
				return m
			}
		}
	case jx.Array, jx.String:
		msg, err := firstString(d)
		if err == nil {
			return msg
		}
	}
	return ""
}

// firstString returns the first string found in the current value, looking
// into arrays depth-first. Other values are skipped.
func firstString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Array:
		var out string
		err := d.Arr(func(d *jx.Decoder) error {
			if out != "" {
				return d.Skip()
			}
			s, err := firstString(d)
			out = s
			return err
		})
		return out, err
	default:
		return "", d.Skip()
	}
}

// UserMessage renders err as the inline message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		apiErr *Error
		valErr *product.ValidationError
	)
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		return "You must sign in to continue."
	case errors.Is(err, auth.ErrForbidden):
		return "Insufficient privilege: an administrator account is required."
	case errors.Is(err, product.ErrNotFound):
		return "Product not found."
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &apiErr):
		if apiErr.Network() {
			return "Network error: the shop is unreachable, try again."
		}
		return fmt.Sprintf("Request failed with status %d.", apiErr.Status)
	}
	return err.Error()
}
