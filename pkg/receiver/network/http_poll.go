package network

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-logreceiver/pkg/codepage"
	"github.com/core-tools/hsu-logreceiver/pkg/errors"
	"github.com/core-tools/hsu-logreceiver/pkg/logging"
	"github.com/core-tools/hsu-logreceiver/pkg/receiver"
)

const (
	DefaultHttpInterval = time.Second
	DefaultHttpTimeout  = 10 * time.Second
)

var maxHttpBody int64 = 64 << 20

// HttpConfig configures an HttpPoll.
type HttpConfig struct {
	URL                string                 `yaml:"url" toml:"url"`
	Username           string                 `yaml:"username" toml:"username"`
	Password           string                 `yaml:"password" toml:"password"`
	Interval           time.Duration          `yaml:"interval" toml:"interval"`
	Timeout            time.Duration          `yaml:"timeout" toml:"timeout"`
	StartFromBeginning bool                   `yaml:"start_from_beginning" toml:"start_from_beginning"`
	Codepage           string                 `yaml:"codepage" toml:"codepage"`
	Backoff            receiver.BackoffConfig `yaml:"backoff" toml:"backoff"`
}

// HttpPoll fetches a growing document periodically and ingests what was
// appended since the previous fetch.
type HttpPoll struct {
	config HttpConfig
	logger logging.Logger
	client *http.Client

	// Cursor: length and running hash of the content seen so far.
	seen    int
	hasher  hash.Hash
	primed  bool
	decoder *receiver.LineDecoder
}

func NewHttpPoll(config HttpConfig, logger logging.Logger) *HttpPoll {
	if config.Interval <= 0 {
		config.Interval = DefaultHttpInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHttpTimeout
	}
	if config.Codepage == "" {
		config.Codepage = codepage.Default
	}
	if config.Backoff == (receiver.BackoffConfig{}) {
		config.Backoff = receiver.DefaultBackoffConfig()
	}
	return &HttpPoll{
		config: config,
		logger: logging.WithPrefix(logger, "http: "),
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (h *HttpPoll) DisplayInfo() string {
	return fmt.Sprintf("HTTP: %s", h.config.URL)
}

func (h *HttpPoll) Validate() error {
	if h.config.URL == "" {
		return errors.NewValidationError("url is required", nil)
	}
	u, err := url.Parse(h.config.URL)
	if err != nil {
		return errors.NewValidationError("invalid url", err).WithContext("url", h.config.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewValidationError("url scheme must be http or https", nil).WithContext("url", h.config.URL)
	}
	if u.Host == "" {
		return errors.NewValidationError("url has no host", nil).WithContext("url", h.config.URL)
	}
	if _, err := codepage.Lookup(h.config.Codepage); err != nil {
		return err
	}
	if err := receiver.ValidateBackoffConfig(h.config.Backoff); err != nil {
		return errors.NewValidationError("invalid backoff", err)
	}
	return nil
}

func (h *HttpPoll) Prepare() error {
	decoder, err := receiver.NewLineDecoder(h.config.Codepage)
	if err != nil {
		return err
	}
	h.decoder = decoder
	h.seen = 0
	h.hasher = sha256.New()
	h.primed = h.config.StartFromBeginning
	return nil
}

func (h *HttpPoll) Run(ctx context.Context, p *receiver.Pipeline) error {
	if h.decoder == nil {
		if err := h.Prepare(); err != nil {
			return err
		}
	}

	backoff := receiver.NewBackoff(h.config.Backoff)
	for {
		if err := p.WaitActive(ctx); err != nil {
			return nil
		}

		lines, err := h.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.Error(err)
			if backoff.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		backoff.Reset()

		for _, line := range lines {
			if !p.Line(h.config.URL, line) {
				return nil
			}
		}

		if receiver.Sleep(ctx, h.config.Interval) != nil {
			return nil
		}
	}
}

// poll fetches what was appended since the previous poll. Once a baseline
// exists only the tail is requested; servers that ignore the range are
// handled by comparing the full body.
func (h *HttpPoll) poll(ctx context.Context) ([]string, error) {
	from := 0
	if h.primed && h.seen > 0 {
		from = h.seen
	}

	resp, err := h.request(ctx, from)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := h.readBody(resp.Body)
		if err != nil {
			return nil, err
		}
		return h.delta(body), nil

	case http.StatusPartialContent:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if from == 0 || !ok || start != from || total < from {
			return h.refetch(ctx)
		}
		body, err := h.readBody(resp.Body)
		if err != nil {
			return nil, err
		}
		return h.appended(body), nil

	case http.StatusRequestedRangeNotSatisfiable:
		// Nothing past the cursor. An unchanged length means no new data.
		if total, ok := parseUnsatisfiedRange(resp.Header.Get("Content-Range")); ok && total == from {
			return nil, nil
		}
		return h.refetch(ctx)
	}

	return nil, errors.NewNetworkError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
		WithContext("url", h.config.URL)
}

// refetch downloads the whole document when a range answer cannot be
// trusted.
func (h *HttpPoll) refetch(ctx context.Context) ([]string, error) {
	resp, err := h.request(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
			WithContext("url", h.config.URL)
	}
	body, err := h.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	return h.delta(body), nil
}

func (h *HttpPoll) request(ctx context.Context, from int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.config.URL, nil)
	if err != nil {
		return nil, errors.NewValidationError("cannot build request", err)
	}
	if h.config.Username != "" {
		req.SetBasicAuth(h.config.Username, h.config.Password)
	}
	if from > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errors.NewTimeoutError("request timed out", err).WithContext("url", h.config.URL)
		}
		return nil, errors.NewNetworkError("request failed", err).WithContext("url", h.config.URL)
	}
	return resp, nil
}

// readBody reads at most maxHttpBody bytes. A larger body is an error,
// never a silently shortened document.
func (h *HttpPoll) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxHttpBody+1))
	if err != nil {
		return nil, errors.NewNetworkError("cannot read body", err).WithContext("url", h.config.URL)
	}
	if int64(len(body)) > maxHttpBody {
		return nil, errors.NewIOError("response body exceeds size limit", nil).
			WithContext("url", h.config.URL).
			WithContext("limit", strconv.FormatInt(maxHttpBody, 10))
	}
	return body, nil
}

// delta compares a full body with the previous one and returns the new
// records. A body that does not start with the previous content is
// treated as new.
func (h *HttpPoll) delta(body []byte) []string {
	prev := h.seen
	appended := len(body) >= prev && bytes.Equal(sha256Sum(body[:prev]), h.hasher.Sum(nil))

	h.seen = len(body)
	h.hasher.Reset()
	h.hasher.Write(body)

	if !h.primed {
		// First response is the baseline.
		h.primed = true
		h.logger.Debugf("Baseline of %d bytes", len(body))
		return nil
	}
	if !appended {
		h.logger.Debugf("Content replaced, restarting with %d bytes", len(body))
		h.decoder.Reset()
		return h.decoder.Feed(body)
	}
	return h.decoder.Feed(body[prev:])
}

// appended consumes the tail returned by a range request.
func (h *HttpPoll) appended(tail []byte) []string {
	h.seen += len(tail)
	h.hasher.Write(tail)
	return h.decoder.Feed(tail)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// parseContentRange reads "bytes start-end/total".
func parseContentRange(header string) (start, total int, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes ")
	if !found {
		return 0, 0, false
	}
	span, size, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(size)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}

// parseUnsatisfiedRange reads "bytes */total".
func parseUnsatisfiedRange(header string) (int, bool) {
	size, found := strings.CutPrefix(header, "bytes */")
	if !found {
		return 0, false
	}
	total, err := strconv.Atoi(size)
	if err != nil {
		return 0, false
	}
	return total, true
}
