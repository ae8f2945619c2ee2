package control

import (
	"google.golang.org/grpc"
)

// The push protocol is a single client-streaming method. Requests are
// google.protobuf.BytesValue chunks of raw log text and the reply is
// google.protobuf.Empty, so no generated code is needed.
const (
	PushServiceName = "hsu.logreceiver.v1.LogPush"
	PushMethodName  = "Push"
	PushFullMethod  = "/" + PushServiceName + "/" + PushMethodName
)

// PushHandler accepts push streams on the server side.
type PushHandler interface {
	// OpenStream is called once per client stream. peer is the remote
	// address of the client.
	OpenStream(peer string) PushStream
}

// PushStream consumes the chunks of one client stream in order.
type PushStream interface {
	Chunk(data []byte)
	// Close is called exactly once, with nil when the client finished
	// sending and the receive error otherwise.
	Close(err error)
}

type pushServer interface {
	push(stream grpc.ServerStream) error
}

func pushStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(pushServer).push(stream)
}

var pushServiceDesc = grpc.ServiceDesc{
	ServiceName: PushServiceName,
	HandlerType: (*pushServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    PushMethodName,
			Handler:       pushStreamHandler,
			ClientStreams: true,
		},
	},
	Metadata: "hsu/logreceiver/v1/push.proto",
}
