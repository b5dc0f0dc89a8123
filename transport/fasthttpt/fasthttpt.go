// Package fasthttpt is the default transport.Func implementation, built
// on valyala/fasthttp the way the teacher's provider clients are
// (providers/anthropic.go's CompleteRequest: AcquireRequest/Response
// pooled pairs, client.Do, status-code branch, body read). Nothing in
// the core packages imports this package; callers wire it in explicitly
// at the edge (spec.md §6: "the core MUST NOT depend on how the
// transport is constructed").
package fasthttpt

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/maximhq/datahook/schemas"
	"github.com/valyala/fasthttp"
)

// Client sends requests built from a base URL plus the controller's
// path/method/body over a pooled fasthttp.Client.
type Client struct {
	BaseURL string
	HTTP    *fasthttp.Client
}

// New creates a Client with sane pool defaults, mirroring the teacher's
// per-provider client construction (MaxConnsPerHost, timeouts left to
// the caller via HTTP if they need non-default values).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &fasthttp.Client{MaxConnsPerHost: 512},
	}
}

// Do implements transport.Func.
func (c *Client) Do(ctx context.Context, path string, method schemas.Method, req schemas.Request) (schemas.Response, error) {
	fullURL, err := c.buildURL(path, req)
	if err != nil {
		return schemas.Response{}, err
	}

	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(freq)
	defer fasthttp.ReleaseResponse(fresp)

	freq.SetRequestURI(fullURL)
	freq.Header.SetMethod(string(method))
	for k, v := range req.Headers {
		freq.Header.Set(k, v)
	}

	if req.Body != nil {
		body, err := sonic.Marshal(req.Body)
		if err != nil {
			return schemas.Response{}, err
		}
		freq.Header.SetContentType("application/json")
		freq.SetBody(body)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.HTTP.DoDeadline(freq, fresp, deadline); err != nil {
			if ctx.Err() != nil {
				return schemas.Response{Aborted: true}, nil
			}
			return schemas.Response{}, err
		}
	} else {
		done := make(chan error, 1)
		go func() { done <- c.HTTP.Do(freq, fresp) }()
		select {
		case err := <-done:
			if err != nil {
				return schemas.Response{}, err
			}
		case <-ctx.Done():
			return schemas.Response{Aborted: true}, nil
		}
	}

	status := fresp.StatusCode()
	headers := map[string]string{}
	fresp.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	if status >= 400 {
		var payload any
		_ = sonic.Unmarshal(fresp.Body(), &payload)
		return schemas.Response{Status: status, Headers: headers, Err: fmt.Errorf("transport: status %d", status)}, nil
	}

	var data any
	body := fresp.Body()
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &data); err != nil {
			return schemas.Response{}, err
		}
	}
	return schemas.Response{Status: status, Data: data, Headers: headers}, nil
}

func (c *Client) buildURL(path string, req schemas.Request) (string, error) {
	resolved := path
	if params, ok := req.Params.(map[string]string); ok {
		for k, v := range params {
			resolved = strings.ReplaceAll(resolved, ":"+k, url.PathEscape(v))
		}
	}
	full := c.BaseURL + resolved

	if query, ok := req.Query.(map[string]string); ok && len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		full += "?" + values.Encode()
	}
	return full, nil
}
