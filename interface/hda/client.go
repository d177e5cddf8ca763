package hda

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/service"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60
	defaultPageSize     = 100
)

// PollPolicy bounds the status polling loops.
// A job or order that is not terminal after MaxAttempts polls is an error,
// not an endless wait.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Config of the harmonized data access client
type Config struct {
	// Endpoint is the base address of the API, e.g. https://apis.wekeo.eu/databroker/v1
	Endpoint string
	Username string
	Password string
	Poll     PollPolicy
	// PageSize of the result listing (default 100)
	PageSize int
}

// Client talks to the harmonized data access API: token, terms, datarequest,
// results, dataorder and download endpoints.
type Client struct {
	endpoint string
	poll     PollPolicy
	pageSize int
	tokens   *tokenManager
	hclient  *http.Client
}

// NewClient creates a Client. The credentials are checked for presence only;
// they are exchanged for a token on the first call (see Authenticate).
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("NewClient: missing endpoint")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, service.ErrAuth{Reason: "missing username or password"}
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = defaultPollInterval
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	tokens := newTokenManager(strings.TrimSuffix(cfg.Endpoint, "/")+"/gettoken", cfg.Username, cfg.Password)
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		poll:     cfg.Poll,
		pageSize: cfg.PageSize,
		tokens:   tokens,
		hclient: &http.Client{
			Transport: &transportBearer{
				originalTransport: http.DefaultTransport,
				tokens:            tokens,
			},
		},
	}, nil
}

// HTTPClient returns the http client with the bearer-token transport, for
// callers that stream bytes themselves (e.g. the downloader).
func (c *Client) HTTPClient() *http.Client {
	return c.hclient
}

// PollBounds returns the polling policy in effect
func (c *Client) PollBounds() PollPolicy {
	return c.poll
}

// parseStatus normalizes the remote status string.
// Some deployments report "started" or "queued" before the job is running.
func parseStatus(raw string) (common.Status, error) {
	switch strings.ToLower(raw) {
	case "started", "queued", "submitted":
		return common.StatusRunning, nil
	}
	status, err := common.StatusString(raw)
	if err != nil {
		return 0, fmt.Errorf("unexpected status %q", raw)
	}
	return status, nil
}
