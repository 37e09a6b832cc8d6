package transfer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
)

// Response is a command result: a code and its values.
type Response struct {
	Code   string
	Values []any
}

// Caller sends one signed command. params[0] is the command name. A
// transport failure is returned as an error; a server that answered
// always yields a Response.
type Caller interface {
	Call(ctx context.Context, account string, params []any, sig []byte) (Response, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, account string, params []any, sig []byte) (Response, error)

func (f CallerFunc) Call(ctx context.Context, account string, params []any, sig []byte) (Response, error) {
	return f(ctx, account, params, sig)
}

// Invoke signs command and args with c and sends them through caller.
func Invoke(ctx context.Context, caller Caller, c cryptox.Provider, command string, args ...any) (Response, error) {
	params := append([]any{command}, args...)
	sig, err := SignParameters(c, params)
	if err != nil {
		return Response{}, fmt.Errorf("sign %s: %w", command, err)
	}
	return caller.Call(ctx, c.PublicKeyString(), params, sig)
}
