package network

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/control"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

// GrpcConfig configures a GrpcListener.
type GrpcConfig struct {
	Address  string `yaml:"address" toml:"address"`
	Codepage string `yaml:"codepage" toml:"codepage"`
}

// GrpcListener serves the push protocol. Every client stream is read
// like a TCP connection.
type GrpcListener struct {
	config GrpcConfig
	logger logging.Logger
	bound  boundAddr
}

func NewGrpcListener(config GrpcConfig, logger logging.Logger) *GrpcListener {
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	return &GrpcListener{
		config: config,
		logger: logging.WithPrefix(logger, "grpc: "),
	}
}

func (l *GrpcListener) DisplayInfo() string {
	return fmt.Sprintf("gRPC: %s", l.config.Address)
}

func (l *GrpcListener) Validate() error {
	if err := validateAddress(l.config.Address); err != nil {
		return err
	}
	if _, err := codepage.Lookup(l.config.Codepage); err != nil {
		return err
	}
	return nil
}

func (l *GrpcListener) Prepare() error {
	return nil
}

// Addr returns the bound address once the listener is up, nil before.
func (l *GrpcListener) Addr() net.Addr {
	return l.bound.get()
}

func (l *GrpcListener) Run(ctx context.Context, p *receiver.Pipeline) error {
	listener, err := net.Listen("tcp", l.config.Address)
	if err != nil {
		return errors.NewFatalResourceError("cannot listen", err).WithContext("address", l.config.Address)
	}
	l.bound.set(listener.Addr())
	l.logger.Infof("Serving push protocol on %s", listener.Addr())

	server := grpc.NewServer()
	control.RegisterGRPCServerHandler(server, &pushSink{
		ctx:      ctx,
		pipeline: p,
		codepage: l.config.Codepage,
		logger:   l.logger,
	}, l.logger)

	stopped := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		server.Stop()
		close(stopped)
	})
	defer func() {
		if !stop() {
			<-stopped
		}
	}()

	if err := server.Serve(listener); err != nil && ctx.Err() == nil {
		server.Stop()
		return errors.NewFatalResourceError("push server stopped", err).WithContext("address", l.config.Address)
	}
	return nil
}

// pushSink adapts push streams to the pipeline.
type pushSink struct {
	ctx      context.Context
	pipeline *receiver.Pipeline
	codepage string
	logger   logging.Logger
}

func (s *pushSink) OpenStream(peer string) control.PushStream {
	decoder, err := receiver.NewLineDecoder(s.codepage)
	if err != nil {
		s.pipeline.Error(err)
	}
	return &pushStream{sink: s, peer: peer, decoder: decoder}
}

type pushStream struct {
	sink    *pushSink
	peer    string
	decoder *receiver.LineDecoder
}

func (st *pushStream) Chunk(data []byte) {
	if st.decoder == nil {
		return
	}
	for _, line := range st.decoder.Feed(data) {
		if !st.sink.pipeline.Line(st.peer, line) {
			return
		}
	}
}

func (st *pushStream) Close(err error) {
	if st.decoder == nil {
		return
	}
	if err != nil && st.sink.ctx.Err() == nil {
		st.sink.pipeline.Error(errors.NewNetworkError("push stream failed", err).WithContext("peer", st.peer))
	}
	for _, line := range st.decoder.Close() {
		st.sink.pipeline.Line(st.peer, line)
	}
}
