package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const readBufferSize = 32 * 1024

// TcpConfig configures a TcpListener.
type TcpConfig struct {
	Address  string                 `yaml:"address" toml:"address"`
	Codepage string                 `yaml:"codepage" toml:"codepage"`
	Backoff  receiver.BackoffConfig `yaml:"backoff" toml:"backoff"`
}

// TcpListener accepts any number of connections and reads newline
// separated records from each of them.
type TcpListener struct {
	config TcpConfig
	logger logging.Logger
	bound  boundAddr
}

func NewTcpListener(config TcpConfig, logger logging.Logger) *TcpListener {
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	if config.Backoff == (receiver.BackoffConfig{}) {
		config.Backoff = receiver.DefaultBackoffConfig()
	}
	return &TcpListener{
		config: config,
		logger: logging.WithPrefix(logger, "tcp: "),
	}
}

func (l *TcpListener) DisplayInfo() string {
	return fmt.Sprintf("TCP: %s", l.config.Address)
}

func (l *TcpListener) Validate() error {
	if err := validateAddress(l.config.Address); err != nil {
		return err
	}
	if _, err := codepage.Lookup(l.config.Codepage); err != nil {
		return err
	}
	if err := receiver.ValidateBackoffConfig(l.config.Backoff); err != nil {
		return errors.NewValidationError("invalid backoff", err)
	}
	return nil
}

func (l *TcpListener) Prepare() error {
	return nil
}

// Addr returns the bound address once the listener is up, nil before.
func (l *TcpListener) Addr() net.Addr {
	return l.bound.get()
}

func (l *TcpListener) Run(ctx context.Context, p *receiver.Pipeline) error {
	listener, err := net.Listen("tcp", l.config.Address)
	if err != nil {
		return errors.NewFatalResourceError("cannot listen", err).WithContext("address", l.config.Address)
	}
	l.bound.set(listener.Addr())
	l.logger.Infof("Listening on %s", listener.Addr())

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	backoff := receiver.NewBackoff(l.config.Backoff)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.Error(errors.NewNetworkError("accept failed", err).WithContext("address", l.config.Address))
			if backoff.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		backoff.Reset()

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serve(ctx, conn, p)
		}()
	}
}

// serve reads one connection until it closes. Each connection owns its
// decoder so records never mix across connections.
func (l *TcpListener) serve(ctx context.Context, conn net.Conn, p *receiver.Pipeline) {
	source := conn.RemoteAddr().String()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	decoder, err := receiver.NewLineDecoder(l.config.Codepage)
	if err != nil {
		p.Error(err)
		return
	}

	l.logger.Debugf("Connection from %s", source)
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range decoder.Feed(buf[:n]) {
				if !p.Line(source, line) {
					return
				}
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err != io.EOF {
			p.Error(errors.NewNetworkError("connection read failed", err).WithContext("peer", source))
		}
		for _, line := range decoder.Close() {
			p.Line(source, line)
		}
		l.logger.Debugf("Connection from %s closed", source)
		return
	}
}
