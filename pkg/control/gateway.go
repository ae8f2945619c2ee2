package control

import (
	"context"

	"github.com/core-tools/hsu-logreceiver/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PushGateway is the client side of the push protocol.
type PushGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) *PushGateway {
	return &PushGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

// Open starts a push stream.
func (gw *PushGateway) Open(ctx context.Context) (*PushSender, error) {
	stream, err := gw.conn.NewStream(ctx, &pushServiceDesc.Streams[0], PushFullMethod)
	if err != nil {
		gw.logger.Errorf("Push client gateway: %v", err)
		return nil, err
	}
	return &PushSender{stream: stream, logger: gw.logger}, nil
}

// Push sends chunks on a new stream and waits for the server to finish.
func (gw *PushGateway) Push(ctx context.Context, chunks ...[]byte) error {
	sender, err := gw.Open(ctx)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := sender.Send(chunk); err != nil {
			return err
		}
	}
	return sender.Close()
}

// PushSender writes the chunks of one stream.
type PushSender struct {
	stream grpc.ClientStream
	logger logging.Logger
	sent   int
}

func (s *PushSender) Send(chunk []byte) error {
	if err := s.stream.SendMsg(wrapperspb.Bytes(chunk)); err != nil {
		s.logger.Errorf("Push client gateway send: %v", err)
		return err
	}
	s.sent++
	return nil
}

// Close ends the stream and waits for the server acknowledgement.
func (s *PushSender) Close() error {
	if err := s.stream.CloseSend(); err != nil {
		return err
	}
	if err := s.stream.RecvMsg(&emptypb.Empty{}); err != nil {
		s.logger.Errorf("Push client gateway close: %v", err)
		return err
	}
	s.logger.Debugf("Push client gateway done, chunks: %d", s.sent)
	return nil
}
