package grpc

import (
	"context"

	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	pb "github.com/dmitrijs2005/bulletinkeeper/internal/proto"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// commandHandler adapts a transfer.Caller to the gRPC Call method. Result
// codes travel in the reply; only envelope problems become RPC errors.
type commandHandler struct {
	pb.UnimplementedCommandServiceServer
	caller transfer.Caller
	logger logging.Logger
}

func (h *commandHandler) Call(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	req, err := pb.DecodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := h.caller.Call(ctx, req.Account, req.Params, req.Signature)
	if err != nil {
		h.logger.Error(ctx, "command failed", "command", req.Command(), "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	out, err := pb.EncodeResponse(resp.Code, resp.Values)
	if err != nil {
		h.logger.Error(ctx, "reply not encodable", "command", req.Command(), "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
