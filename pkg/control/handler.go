package control

import (
	"io"

	"github.com/core-tools/hsu-logreceiver/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler PushHandler, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&pushServiceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler PushHandler
	logger  logging.Logger
}

func (h *grpcServerHandler) push(stream grpc.ServerStream) error {
	remote := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok && p.Addr != nil {
		remote = p.Addr.String()
	}

	sink := h.handler.OpenStream(remote)
	chunks := 0
	for {
		chunk := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			sink.Close(nil)
			h.logger.Debugf("Push server handler done, peer: %s, chunks: %d", remote, chunks)
			return stream.SendMsg(&emptypb.Empty{})
		}
		if err != nil {
			sink.Close(err)
			h.logger.Warnf("Push server handler, peer: %s: %v", remote, err)
			return err
		}
		chunks++
		sink.Chunk(chunk.GetValue())
	}
}
