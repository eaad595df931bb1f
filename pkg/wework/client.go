package wework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

const (
	DefaultBaseURL    = "https://wework.base.vn/extapi/v3"
	DefaultRetries    = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// ErrNoData means upstream could not supply a payload after every attempt. Callers treat
// it as an empty result, not a fault.
var ErrNoData = errors.New("wework: no data")

type Options struct {
	BaseURL string
	// TokenSource supplies the access token sent with every request.
	TokenSource oauth2.TokenSource
	// Retries is the total number of attempts per request.
	Retries int
	// RetryDelay is the constant wait between attempts; zero retries immediately.
	RetryDelay time.Duration
	// Timeout bounds each attempt.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// StaticToken wraps a fixed access token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

type Client struct {
	opts   Options
	http   *http.Client
	logger logrus.FieldLogger
}

func NewClient(opts Options, logger logrus.FieldLogger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TokenSource == nil {
		opts.TokenSource = StaticToken("")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{opts: opts, http: hc, logger: logger}
}

// FetchProjects lists every project visible to the token.
func (c *Client) FetchProjects(ctx context.Context) ([]model.Project, error) {
	data, err := c.post(ctx, "project/list", nil)
	if err != nil {
		return nil, err
	}
	items, _ := data.Get("projects").List()
	projects := make([]model.Project, 0, len(items))
	for _, item := range items {
		if m, ok := item.Map(); ok {
			projects = append(projects, model.ProjectFromMap(m))
		}
	}
	return projects, nil
}

// FetchProjectDetails returns the full project payload, including its tasks and subtasks.
func (c *Client) FetchProjectDetails(ctx context.Context, projectID string) (model.Value, error) {
	return c.post(ctx, "project/get.full", url.Values{"id": {projectID}})
}

// ProjectInfo finds a project in the project list by id. It returns nil when no project
// has that id.
func (c *Client) ProjectInfo(ctx context.Context, projectID string) (*model.Project, error) {
	projects, err := c.FetchProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == projectID {
			return &projects[i], nil
		}
	}
	return nil, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (model.Value, error) {
	tok, err := c.opts.TokenSource.Token()
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: failed to get access token: %w", ErrNoData, err)
	}
	body := url.Values{}
	for k, v := range form {
		body[k] = v
	}
	body.Set("access_token", tok.AccessToken)
	endpoint := c.opts.BaseURL + "/" + path

	var data model.Value
	attempt := 0
	op := func() error {
		attempt++
		var err error
		data, err = c.do(ctx, endpoint, body)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	boff := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), uint64(c.opts.Retries-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"endpoint": path,
			"attempt":  attempt,
			"wait":     wait,
		}).WithError(err).Warn("upstream request failed, retrying")
	}
	if err := backoff.RetryNotify(op, boff, notify); err != nil {
		c.logger.WithFields(logrus.Fields{
			"endpoint": path,
			"attempts": attempt,
		}).WithError(err).Error("upstream request failed")
		return model.Value{}, fmt.Errorf("%w: %s: %w", ErrNoData, path, err)
	}
	return data, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, endpoint string, body url.Values) (model.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return model.Value{}, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Value{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Value{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return model.Value{}, &statusError{code: resp.StatusCode, body: snippet}
	}

	var data model.Value
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.Value{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return data, nil
}
