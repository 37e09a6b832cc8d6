package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	pb "github.com/dmitrijs2005/bulletinkeeper/internal/proto"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	bulletins transfer.Caller
	mirroring transfer.Caller
	logger    logging.Logger
}

// NewGRPCServer serves bulletins to clients and, when mirroring is not
// nil, sealed bulletins to peer servers.
func NewGRPCServer(a string, l logging.Logger, bulletins, mirroring transfer.Caller) (*GRPCServer, error) {
	if bulletins == nil {
		return nil, errors.New("bulletin service is required")
	}
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		bulletins: bulletins,
		mirroring: mirroring,
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.loggingInterceptor))

	pb.RegisterBulletinServiceServer(srv, &commandHandler{caller: s.bulletins, logger: s.logger})
	if s.mirroring != nil {
		pb.RegisterMirroringServiceServer(srv, &commandHandler{caller: s.mirroring, logger: s.logger})
	}
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String(), "mirroring", s.mirroring != nil)

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
