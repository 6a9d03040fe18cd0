package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

const (
	defaultTimeout = 2 * time.Minute
	messageLimit   = 200
	payloadLimit   = 500
	redacted       = "********"
)

// sensitiveKeys are replaced in debug payload logs.
var sensitiveKeys = map[string]bool{
	"password":     true,
	"token":        true,
	"accesstoken":  true,
	"access_token": true,
	"apikey":       true,
	"secret":       true,
}

// Client is the transport used by Tenant. Every call goes through Request
// and yields an Outcome; HTTP failures never surface as panics or Go errors.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient creates a Client for an environment. The bearer token is
// attached by an oauth2 transport so it is never copied into request code.
func NewClient(env *models.Environment, log logrus.FieldLogger) *Client {
	base := &http.Transport{Proxy: http.ProxyFromEnvironment}
	c := newClient(env.BaseURL(), env.Token, base, log)
	if env.Insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.log.Warn("TLS certificate verification disabled")
	}
	return c
}

func newClient(baseURL, token string, base http.RoundTripper, log logrus.FieldLogger) *Client {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: &oauth2.Transport{Source: src, Base: base},
		},
		log: log.WithField("tenant", baseURL),
	}
}

// BaseURL returns the tenant root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs one HTTP call. path may already carry a query string;
// params are appended to it.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, payload any) Outcome {
	out := Outcome{Method: method, Path: path}

	u := c.baseURL + path
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			out.Kind = NoResponse
			out.cause = fmt.Errorf("marshaling body: %w", err)
			out.Message = out.cause.Error()
			return out
		}
		bodyReader = bytes.NewReader(data)
		c.log.WithFields(logrus.Fields{"method": method, "url": u, "payload": redact(data)}).Debug("request")
	} else {
		c.log.WithFields(logrus.Fields{"method": method, "url": u}).Debug("request")
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		out.Kind = NoResponse
		out.cause = fmt.Errorf("creating request: %w", err)
		out.Message = out.cause.Error()
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out.Kind = NoResponse
		out.cause = err
		out.Message = err.Error()
		c.log.WithError(err).WithField("url", u).Debug("no response")
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	out.Status = resp.StatusCode
	out.Body = body
	if err != nil {
		out.Kind = Failure
		out.Message = fmt.Sprintf("reading response: %v", err)
		return out
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Kind = Success
	} else {
		out.Kind = Failure
		out.Message = truncate(string(body), messageLimit)
	}
	c.log.WithFields(logrus.Fields{"method": method, "url": u, "status": resp.StatusCode}).Debug("response")
	return out
}

// Get performs a GET.
func (c *Client) Get(ctx context.Context, path string, params url.Values) Outcome {
	return c.Request(ctx, http.MethodGet, path, params, nil)
}

// GetJSON performs a GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest any) error {
	return c.Get(ctx, path, params).Decode(dest)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, payload any) Outcome {
	return c.Request(ctx, http.MethodPost, path, nil, payload)
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, payload any) Outcome {
	return c.Request(ctx, http.MethodPut, path, nil, payload)
}

// Patch performs a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, payload any) Outcome {
	return c.Request(ctx, http.MethodPatch, path, nil, payload)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) Outcome {
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// redact renders a JSON payload for logging with credentials masked.
func redact(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return truncate(string(data), payloadLimit)
	}
	v = redactValue(v)
	out, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return truncate(string(out), payloadLimit)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				t[k] = redacted
				continue
			}
			t[k] = redactValue(val)
		}
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
	}
	return v
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
