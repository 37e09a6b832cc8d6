package proto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Request is a signed command. Params[0] is the command name; Signature
// covers every element of Params.
type Request struct {
	Account   string
	Params    []any
	Signature []byte
}

// Command returns Params[0] when it is a string.
func (r Request) Command() string {
	if len(r.Params) == 0 {
		return ""
	}
	s, _ := r.Params[0].(string)
	return s
}

// Args returns the parameters after the command.
func (r Request) Args() []any {
	if len(r.Params) == 0 {
		return nil
	}
	return r.Params[1:]
}

var errMalformed = errors.New("malformed request")

func EncodeRequest(r Request) (*structpb.Struct, error) {
	params, err := structpb.NewList(toWire(r.Params))
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"account":   structpb.NewStringValue(r.Account),
		"params":    structpb.NewListValue(params),
		"signature": structpb.NewStringValue(base64.StdEncoding.EncodeToString(r.Signature)),
	}}, nil
}

func DecodeRequest(in *structpb.Struct) (Request, error) {
	f := in.GetFields()
	account, ok := f["account"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Request{}, fmt.Errorf("%w: account", errMalformed)
	}
	params, ok := f["params"].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return Request{}, fmt.Errorf("%w: params", errMalformed)
	}
	sigText, ok := f["signature"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Request{}, fmt.Errorf("%w: signature", errMalformed)
	}
	sig, err := base64.StdEncoding.DecodeString(sigText.StringValue)
	if err != nil {
		return Request{}, fmt.Errorf("%w: signature encoding", errMalformed)
	}
	return Request{Account: account.StringValue, Params: params.ListValue.AsSlice(), Signature: sig}, nil
}

// EncodeResponse builds the reply list [code, values...].
func EncodeResponse(code string, values []any) (*structpb.ListValue, error) {
	return structpb.NewList(toWire(append([]any{code}, values...)))
}

// DecodeResponse splits a reply into its code and values.
func DecodeResponse(l *structpb.ListValue) (string, []any, error) {
	items := l.AsSlice()
	if len(items) == 0 {
		return "", nil, fmt.Errorf("%w: empty response", errMalformed)
	}
	code, ok := items[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: response code", errMalformed)
	}
	return code, items[1:], nil
}

// toWire converts values structpb cannot take directly.
func toWire(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case []string:
			l := make([]any, len(x))
			for j, s := range x {
				l[j] = s
			}
			out[i] = l
		case []any:
			out[i] = toWire(x)
		default:
			out[i] = v
		}
	}
	return out
}
