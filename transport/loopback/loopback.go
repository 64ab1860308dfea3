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

// Package loopback delivers requests to a backend running in the same process.
package loopback

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/gx-org/tiles/transport"
	"github.com/gx-org/tiles/wire"
)

// Request delivered by a loopback transport.
type Request struct {
	Handler wire.Handler
	Payload []byte
	Async   bool
}

// Transport calls a handler directly.
type Transport struct {
	handler transport.Handler

	mu       sync.Mutex
	requests []Request
	closed   bool
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport delivering requests to a handler.
func New(h transport.Handler) *Transport {
	return &Transport{handler: h}
}

func (t *Transport) record(h wire.Handler, req []byte, async bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.Errorf("cannot send %s request: transport closed", h)
	}
	t.requests = append(t.requests, Request{
		Handler: h,
		Payload: append([]byte{}, req...),
		Async:   async,
	})
	return nil
}

// Call delivers a request and checks the size of the reply.
func (t *Transport) Call(ctx context.Context, h wire.Handler, req []byte, replySize int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.record(h, req, false); err != nil {
		return nil, err
	}
	reply, err := t.handler.Handle(h, req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", h)
	}
	if len(reply) != replySize {
		return nil, errors.Errorf("%s request: got a reply of %d bytes but want %d", h, len(reply), replySize)
	}
	return reply, nil
}

// Send delivers a request and ignores the reply.
func (t *Transport) Send(ctx context.Context, h wire.Handler, req []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.record(h, req, true); err != nil {
		return err
	}
	_, err := t.handler.Handle(h, req)
	return errors.Wrapf(err, "%s request failed", h)
}

// Close the transport. Subsequent requests fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Requests returns all the requests delivered so far.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request{}, t.requests...)
}

// Count returns the number of requests delivered to a given handler.
func (t *Transport) Count(h wire.Handler) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, req := range t.requests {
		if req.Handler == h {
			n++
		}
	}
	return n
}
