package control

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/core-tools/hsu-logreceiver/pkg/logging"
)

type recordedStream struct {
	peer   string
	chunks []string
	closed bool
	err    error
}

type recordingPushHandler struct {
	mu      sync.Mutex
	streams []*recordedStream
}

func (h *recordingPushHandler) OpenStream(peer string) PushStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &recordedStream{peer: peer}
	h.streams = append(h.streams, s)
	return &lockedStream{mu: &h.mu, s: s}
}

func (h *recordingPushHandler) snapshot() []recordedStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]recordedStream, 0, len(h.streams))
	for _, s := range h.streams {
		out = append(out, *s)
	}
	return out
}

type lockedStream struct {
	mu *sync.Mutex
	s  *recordedStream
}

func (l *lockedStream) Chunk(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.chunks = append(l.s.chunks, string(data))
}

func (l *lockedStream) Close(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.closed = true
	l.s.err = err
}

func startPushServer(t *testing.T, handler PushHandler) *PushGateway {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterGRPCServerHandler(server, handler, logging.NewNopLogger())
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewGRPCClientGateway(conn, logging.NewNopLogger())
}

func TestPush_DeliversChunksInOrder(t *testing.T) {
	handler := &recordingPushHandler{}
	gateway := startPushServer(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, gateway.Push(ctx, []byte("first li"), []byte("ne\nsecond\n")))

	streams := handler.snapshot()
	require.Len(t, streams, 1)
	assert.Equal(t, []string{"first li", "ne\nsecond\n"}, streams[0].chunks)
	assert.True(t, streams[0].closed)
	assert.NoError(t, streams[0].err)
	assert.NotEmpty(t, streams[0].peer)
}

func TestPush_StreamsAreSeparate(t *testing.T) {
	handler := &recordingPushHandler{}
	gateway := startPushServer(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := gateway.Open(ctx)
	require.NoError(t, err)
	b, err := gateway.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Send([]byte("a1")))
	require.NoError(t, b.Send([]byte("b1")))
	require.NoError(t, a.Send([]byte("a2")))
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	streams := handler.snapshot()
	require.Len(t, streams, 2)
	byFirst := map[string][]string{}
	for _, s := range streams {
		require.NotEmpty(t, s.chunks)
		byFirst[s.chunks[0]] = s.chunks
	}
	assert.Equal(t, []string{"a1", "a2"}, byFirst["a1"])
	assert.Equal(t, []string{"b1"}, byFirst["b1"])
}

func TestPush_EmptyStream(t *testing.T) {
	handler := &recordingPushHandler{}
	gateway := startPushServer(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, gateway.Push(ctx))

	streams := handler.snapshot()
	require.Len(t, streams, 1)
	assert.Empty(t, streams[0].chunks)
	assert.True(t, streams[0].closed)
}
