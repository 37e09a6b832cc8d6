package client

import (
	"context"
	"fmt"
	"time"

	pb "github.com/dmitrijs2005/bulletinkeeper/internal/proto"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout applies to calls whose context has no deadline.
const DefaultCallTimeout = 30 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.CommandServiceClient
	timeout     time.Duration
}

func (s *GRPCClient) timeoutInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewBulletinClient connects to a server's client-facing service.
func NewBulletinClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	return newGRPCClient(endpointURL, pb.NewBulletinServiceClient, opts)
}

// NewMirroringClient connects to a supplier server's mirroring service.
func NewMirroringClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	return newGRPCClient(endpointURL, pb.NewMirroringServiceClient, opts)
}

func newGRPCClient(endpointURL string, newClient func(grpc.ClientConnInterface) pb.CommandServiceClient, opts []grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: DefaultCallTimeout}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.timeoutInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = newClient(conn)
	return c, nil
}

// Call sends one signed command and decodes the reply.
func (s *GRPCClient) Call(ctx context.Context, account string, params []any, sig []byte) (transfer.Response, error) {
	req, err := pb.EncodeRequest(pb.Request{Account: account, Params: params, Signature: sig})
	if err != nil {
		return transfer.Response{}, err
	}
	resp, err := s.client.Call(ctx, req)
	if err != nil {
		return transfer.Response{}, s.mapError(err)
	}
	code, values, err := pb.DecodeResponse(resp)
	if err != nil {
		return transfer.Response{}, err
	}
	return transfer.Response{Code: code, Values: values}, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
