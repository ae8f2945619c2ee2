package network

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/logmessage"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const maxDatagramSize = 64 * 1024

// Datagram formats understood by UdpListener. FormatLines runs every
// line through the columnizer.
const (
	FormatLines   = ""
	FormatSyslog  = "syslog"
	FormatRFC3164 = "rfc3164"
	FormatRFC5424 = "rfc5424"
	FormatLog4j   = "log4j"
)

// UdpConfig configures a UdpListener.
type UdpConfig struct {
	Address        string `yaml:"address" toml:"address"`
	MulticastGroup string `yaml:"multicast_group" toml:"multicast_group"`
	Interface      string `yaml:"interface" toml:"interface"`
	Codepage       string `yaml:"codepage" toml:"codepage"`
	Format         string `yaml:"format" toml:"format"`
}

// UdpListener reads datagrams, optionally from a multicast group.
type UdpListener struct {
	config UdpConfig
	logger logging.Logger
	bound  boundAddr
}

func NewUdpListener(config UdpConfig, logger logging.Logger) *UdpListener {
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	config.Format = strings.ToLower(config.Format)
	return &UdpListener{
		config: config,
		logger: logging.WithPrefix(logger, "udp: "),
	}
}

func (l *UdpListener) DisplayInfo() string {
	if l.config.MulticastGroup != "" {
		return fmt.Sprintf("UDP: %s (group %s)", l.config.Address, l.config.MulticastGroup)
	}
	return fmt.Sprintf("UDP: %s", l.config.Address)
}

func (l *UdpListener) Validate() error {
	if err := validateAddress(l.config.Address); err != nil {
		return err
	}
	if l.config.MulticastGroup != "" {
		ip := net.ParseIP(l.config.MulticastGroup)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			return errors.NewValidationError("multicast group must be an IPv4 multicast address", nil).
				WithContext("group", l.config.MulticastGroup)
		}
		host, _, _ := net.SplitHostPort(l.config.Address)
		if hostIP := net.ParseIP(host); hostIP != nil && hostIP.To4() == nil {
			return errors.NewValidationError("multicast listener needs an IPv4 address", nil).
				WithContext("address", l.config.Address)
		}
	}
	if l.config.Interface != "" {
		if _, err := net.InterfaceByName(l.config.Interface); err != nil {
			return errors.NewValidationError("unknown network interface", err).WithContext("interface", l.config.Interface)
		}
	}
	switch l.config.Format {
	case FormatLines, FormatSyslog, FormatRFC3164, FormatRFC5424, FormatLog4j:
	default:
		return errors.NewValidationError("unknown datagram format", nil).WithContext("format", l.config.Format)
	}
	if _, err := codepage.Lookup(l.config.Codepage); err != nil {
		return err
	}
	return nil
}

func (l *UdpListener) Prepare() error {
	return nil
}

// Addr returns the bound address once the listener is up, nil before.
func (l *UdpListener) Addr() net.Addr {
	return l.bound.get()
}

func (l *UdpListener) Run(ctx context.Context, p *receiver.Pipeline) error {
	network, address := "udp", l.config.Address
	if l.config.MulticastGroup != "" {
		// Group traffic only reaches a wildcard socket. Unicast to the
		// same port still arrives there too.
		_, port, _ := net.SplitHostPort(address)
		network, address = "udp4", net.JoinHostPort("0.0.0.0", port)
	}

	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return errors.NewFatalResourceError("cannot bind", err).WithContext("address", address)
	}
	l.bound.set(conn.LocalAddr())
	l.logger.Infof("Listening on %s", conn.LocalAddr())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	if l.config.MulticastGroup != "" {
		if err := l.join(conn); err != nil {
			p.Error(err)
		}
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.Error(errors.NewNetworkError("datagram read failed", err).WithContext("address", address))
			if receiver.Sleep(ctx, 100*time.Millisecond) != nil {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}
		if !l.datagram(p, from.String(), buf[:n]) {
			return nil
		}
	}
}

func (l *UdpListener) join(conn net.PacketConn) error {
	var ifi *net.Interface
	if l.config.Interface != "" {
		found, err := net.InterfaceByName(l.config.Interface)
		if err != nil {
			return errors.NewNetworkError("cannot join multicast group", err).WithContext("interface", l.config.Interface)
		}
		ifi = found
	}
	group := &net.UDPAddr{IP: net.ParseIP(l.config.MulticastGroup)}
	if err := ipv4.NewPacketConn(conn).JoinGroup(ifi, group); err != nil {
		return errors.NewNetworkError("cannot join multicast group", err).WithContext("group", l.config.MulticastGroup)
	}
	l.logger.Infof("Joined multicast group %s", l.config.MulticastGroup)
	return nil
}

// datagram handles one datagram on its own; nothing carries over to the
// next one.
func (l *UdpListener) datagram(p *receiver.Pipeline, source string, data []byte) bool {
	switch l.config.Format {
	case FormatLines:
		decoder, err := receiver.NewLineDecoder(l.config.Codepage)
		if err != nil {
			return p.Error(err)
		}
		lines := append(decoder.Feed(data), decoder.Close()...)
		for _, line := range lines {
			if !p.Line(source, line) {
				return false
			}
		}
		return true

	case FormatLog4j:
		text, err := decodeText(l.config.Codepage, data)
		if err != nil {
			return p.Error(err)
		}
		msgs, err := parseLog4jEvents(text, time.Now())
		if err != nil {
			return p.ReportError(parseFailure(err, text))
		}
		for _, msg := range msgs {
			msg.Source = source
			if !p.Message(msg) {
				return false
			}
		}
		return true

	default:
		text, err := decodeText(l.config.Codepage, data)
		if err != nil {
			return p.Error(err)
		}
		msg, err := parseSyslog(syslogFormat(l.config.Format), text, time.Now())
		if err != nil {
			return p.ReportError(parseFailure(err, text))
		}
		msg.Source = source
		return p.Message(msg)
	}
}

func decodeText(codepageName string, data []byte) (string, error) {
	decoder, err := codepage.NewDecoder(codepageName)
	if err != nil {
		return "", err
	}
	return decoder.Decode(data) + decoder.Flush(), nil
}

func parseFailure(err error, raw string) *logmessage.LogError {
	logErr := logmessage.NewLogError("", err)
	logErr.Detail = raw
	return logErr
}
