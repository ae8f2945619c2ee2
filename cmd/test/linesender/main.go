package main

import (
	"context"
	"fmt"
	"html"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/core-tools/hsu-logreceiver/pkg/control"
	"github.com/core-tools/hsu-logreceiver/pkg/logcollection"
)

type flagOptions struct {
	Protocol string `long:"protocol" default:"tcp" choice:"tcp" choice:"udp" choice:"grpc" description:"transport to send lines over"`
	Address  string `long:"address" default:"127.0.0.1:4505" description:"receiver address"`
	Count    int    `long:"count" default:"10" description:"number of lines to send"`
	Interval int    `long:"interval" default:"100" description:"delay between lines in milliseconds"`
	Log4j    bool   `long:"log4j" description:"send log4j XML events instead of text lines (udp only)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logcollection.DevelopmentLogger()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("Running linesender, opts: %+v...", opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	go func() {
		<-sig
		cancel()
	}()

	send, closeSender, err := newSender(ctx, opts, logger)
	if err != nil {
		logger.Errorf("Failed to connect to %s: %v", opts.Address, err)
		os.Exit(1)
	}

	sent := 0
	for i := 0; i < opts.Count && ctx.Err() == nil; i++ {
		if err := send(line(opts, i)); err != nil {
			logger.Errorf("Failed to send line %d: %v", i, err)
			break
		}
		sent++

		if opts.Interval > 0 && i < opts.Count-1 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(opts.Interval) * time.Millisecond):
			}
		}
	}

	if err := closeSender(); err != nil {
		logger.Errorf("Failed to close sender: %v", err)
	}

	logger.Infof("Done, lines sent: %d", sent)
}

func line(opts flagOptions, i int) []byte {
	now := time.Now()
	level := []string{"INFO", "DEBUG", "WARN", "ERROR"}[i%4]
	text := fmt.Sprintf("linesender message %d", i)

	if opts.Log4j {
		return []byte(fmt.Sprintf(
			`<log4j:event logger="linesender" timestamp="%d" level="%s" thread="main"><log4j:message>%s</log4j:message></log4j:event>`,
			now.UnixMilli(), level, html.EscapeString(text)))
	}
	return []byte(fmt.Sprintf("%s [%s] linesender - %s\n", now.Format("2006-01-02 15:04:05"), level, text))
}

// newSender returns a function sending one line and a function releasing
// the connection
func newSender(ctx context.Context, opts flagOptions, logger logcollection.StructuredLogger) (func([]byte) error, func() error, error) {
	switch opts.Protocol {
	case "grpc":
		conn, err := grpc.DialContext(ctx, opts.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		gateway := control.NewGRPCClientGateway(conn, logcollection.NewLoggingAdapter(logger, "push: "))
		sender, err := gateway.Open(ctx)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return sender.Send, func() error {
			defer conn.Close()
			return sender.Close()
		}, nil

	default:
		conn, err := net.Dial(opts.Protocol, opts.Address)
		if err != nil {
			return nil, nil, err
		}
		return func(data []byte) error {
			_, err := conn.Write(data)
			return err
		}, conn.Close, nil
	}
}
