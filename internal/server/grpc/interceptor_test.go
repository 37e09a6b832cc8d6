package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type recordingLogger struct {
	nopLogger
	warns  []string
	debugs []string
	errs   []string
	last   []any
}

func (r *recordingLogger) Debug(_ context.Context, msg string, args ...any) {
	r.debugs = append(r.debugs, msg)
	r.last = args
}

func (r *recordingLogger) Warn(_ context.Context, msg string, args ...any) {
	r.warns = append(r.warns, msg)
	r.last = args
}

func (r *recordingLogger) Error(_ context.Context, msg string, args ...any) {
	r.errs = append(r.errs, msg)
	r.last = args
}

func (r *recordingLogger) With(...any) logging.Logger { return r }

func TestLoggingInterceptor(t *testing.T) {
	log := &recordingLogger{}
	s := &GRPCServer{logger: log}
	info := &grpc.UnaryServerInfo{FullMethod: "/bulletin.v1.BulletinService/Call"}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}})

	resp, err := s.loggingInterceptor(ctx, nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"rpc done"}, log.debugs)
	assert.Contains(t, log.last, "10.0.0.1:5000")

	_, err = s.loggingInterceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"rpc failed"}, log.warns)
	assert.Contains(t, log.last, codes.InvalidArgument.String())
}

func TestRecoveryInterceptor(t *testing.T) {
	log := &recordingLogger{}
	s := &GRPCServer{logger: log}
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Call"}

	_, err := s.recoveryInterceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("nil map")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, []string{"panic in handler"}, log.errs)

	want := errors.New("plain")
	_, err = s.recoveryInterceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	assert.ErrorIs(t, err, want)
}
