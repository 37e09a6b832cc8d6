package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// ErrInvalidData reports a parameter of the wrong type or range.
var ErrInvalidData = errors.New("invalid data")

// CanonicalParams encodes a parameter list for signing. Each value is
// written as a type tag, its byte length, ':' and the value, so that no two
// different lists share an encoding. Integral numbers encode the same
// whether they arrive as int, int64 or float64.
func CanonicalParams(params []any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, params); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, params []any) error {
	for _, p := range params {
		switch v := p.(type) {
		case string:
			writeItem(buf, 's', v)
		case []string:
			inner := make([]any, len(v))
			for i, s := range v {
				inner[i] = s
			}
			if err := writeList(buf, inner); err != nil {
				return err
			}
		case []any:
			if err := writeList(buf, v); err != nil {
				return err
			}
		default:
			n, err := toInt(p)
			if err != nil {
				return err
			}
			writeItem(buf, 'i', strconv.FormatInt(n, 10))
		}
	}
	return nil
}

func writeList(buf *bytes.Buffer, items []any) error {
	var inner bytes.Buffer
	if err := writeCanonical(&inner, items); err != nil {
		return err
	}
	writeItem(buf, 'l', inner.String())
	return nil
}

func writeItem(buf *bytes.Buffer, tag byte, value string) {
	buf.WriteByte(tag)
	buf.WriteString(strconv.Itoa(len(value)))
	buf.WriteByte(':')
	buf.WriteString(value)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidData, n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: unsupported parameter type %T", ErrInvalidData, v)
}

// SignParameters signs the canonical encoding of params.
func SignParameters(s packet.Signer, params []any) ([]byte, error) {
	data, err := CanonicalParams(params)
	if err != nil {
		return nil, err
	}
	return s.CreateSignature(data)
}

// VerifyParameters checks a signature made by account over params.
func VerifyParameters(v cryptox.Verifier, account string, params []any, sig []byte) bool {
	data, err := CanonicalParams(params)
	if err != nil {
		return false
	}
	return v.IsSignatureValid(account, data, sig)
}

// Args reads typed command arguments. Accessors return ErrInvalidData for
// a missing argument or one of the wrong type.
type Args []any

func (a Args) String(i int) (string, error) {
	if i >= len(a) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidData, i)
	}
	s, ok := a[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrInvalidData, i, a[i])
	}
	return s, nil
}

func (a Args) Int(i int) (int64, error) {
	if i >= len(a) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidData, i)
	}
	return toInt(a[i])
}

// Strings reads a list of strings.
func (a Args) Strings(i int) ([]string, error) {
	if i >= len(a) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrInvalidData, i)
	}
	switch v := a[i].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for j, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: argument %d[%d] is %T, want string", ErrInvalidData, i, j, item)
			}
			out[j] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: argument %d is %T, want list", ErrInvalidData, i, a[i])
}
