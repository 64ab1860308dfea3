// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httptransport sends requests to a backend over HTTP.
//
// Every request is a POST of the binary request to <base URL>/<handler>.
// The reply is the body of the response.
package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/transport"
	"github.com/gx-org/tiles/wire"
	"golang.org/x/net/context/ctxhttp"
	"golang.org/x/sync/errgroup"
)

// ContentType of requests and replies.
const ContentType = "application/octet-stream"

// Transport sends requests to a backend over HTTP.
type Transport struct {
	client *http.Client
	url    *url.URL
	async  errgroup.Group
}

var _ transport.Transport = (*Transport)(nil)

// Option configures a transport.
type Option func(*Transport)

// WithHTTPClient sets the HTTP client used to send requests.
// http.DefaultClient is used by default.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// New returns a transport sending requests to a backend given its base URL.
func New(baseURL string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend URL %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	t := &Transport{client: http.DefaultClient, url: u}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transport) do(ctx context.Context, h wire.Handler, req []byte) ([]byte, error) {
	target := t.url.ResolveReference(&url.URL{Path: string(h)})
	r, err := http.NewRequest(http.MethodPost, target.String(), bytes.NewReader(req))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build %s request", h)
	}
	r.Header.Set("Content-Type", ContentType)
	log.Debug.Printf("httptransport: %s: sending %d bytes to %s", h, len(req), target)
	resp, err := ctxhttp.Do(ctx, t.client, r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", h)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s reply", h)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s request failed: %s: %s", h, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Call sends a request and waits for its reply.
func (t *Transport) Call(ctx context.Context, h wire.Handler, req []byte, replySize int) ([]byte, error) {
	reply, err := t.do(ctx, h, req)
	if err != nil {
		return nil, err
	}
	if len(reply) != replySize {
		return nil, errors.Errorf("%s request: got a reply of %d bytes but want %d", h, len(reply), replySize)
	}
	return reply, nil
}

// Send sends a request in the background.
// Errors are reported by Close.
func (t *Transport) Send(ctx context.Context, h wire.Handler, req []byte) error {
	ctx = context.WithoutCancel(ctx)
	t.async.Go(func() error {
		if _, err := t.do(ctx, h, req); err != nil {
			log.Error.Printf("httptransport: %v", err)
			return err
		}
		return nil
	})
	return nil
}

// Close waits for all requests sent in the background and returns
// the first error encountered by one of them.
func (t *Transport) Close() error {
	return t.async.Wait()
}
