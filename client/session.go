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

// Package client builds computations on arrays stored by a remote backend.
//
// Operations on arrays are not sent to the backend when they are called.
// Instead, the client records them in a graph and compiles the graph into a
// single command when a result is needed: when the caller evaluates an
// array, inspects its shape, or fetches its data. A graph is also sent
// to the backend when it becomes too deep (see WithMaxDepth).
package client

import (
	"context"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"github.com/gx-org/tiles/graph"
	"github.com/gx-org/tiles/transport"
	"github.com/gx-org/tiles/wire"
	"go.uber.org/multierr"
)

// DefaultMaxDepth is the maximum depth of a graph before it is sent to the backend.
const DefaultMaxDepth = 10

type (
	// Session is a connection to a backend.
	// A session is safe for concurrent use.
	Session struct {
		tr       transport.Transport
		ctx      context.Context
		maxDepth int

		mu        sync.Mutex
		clientID  uint8
		closed    bool
		names     nameAllocator
		epochs    epochSequencer
		deletions deletionBatch
		arena     *graph.Arena
		// Create requests of arrays the backend failed to create.
		failed map[wire.Name]*wire.CreateRequest
	}

	// Option configures a session.
	Option func(*Session)
)

// WithMaxDepth sets the depth above which a graph is sent to the backend
// as soon as it is built.
func WithMaxDepth(depth int) Option {
	return func(s *Session) {
		s.maxDepth = depth
	}
}

// Connect opens a session on a backend.
//
// The context is used when the session needs to send a graph to the backend
// without being asked to, that is when a graph is too deep.
func Connect(ctx context.Context, tr transport.Transport, opts ...Option) (*Session, error) {
	s := &Session{
		tr:       tr,
		ctx:      ctx,
		maxDepth: DefaultMaxDepth,
		arena:    graph.NewArena(),
		failed:   make(map[wire.Name]*wire.CreateRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	reply, err := s.call(ctx, wire.Connect, nil, 1)
	if err != nil {
		return nil, err
	}
	s.clientID = reply[0]
	s.names = nameAllocator{clientID: s.clientID}
	log.Printf("tiles: connected to backend as client %d", s.clientID)
	return s, nil
}

// ClientID returns the identifier assigned by the backend to the session.
func (s *Session) ClientID() uint8 {
	return s.clientID
}

func (s *Session) envelope(payload []byte) []byte {
	return wire.Envelope(s.epochs.next(), payload)
}

// call sends a request and waits for its reply.
// The session lock must be held, except in Connect.
func (s *Session) call(ctx context.Context, h wire.Handler, payload []byte, replySize int) ([]byte, error) {
	reply, err := s.tr.Call(ctx, h, s.envelope(payload), replySize)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", h)
	}
	return reply, nil
}

// send sends a request without waiting for the backend to process it.
func (s *Session) send(ctx context.Context, h wire.Handler, payload []byte) error {
	if err := s.tr.Send(ctx, h, s.envelope(payload)); err != nil {
		return errors.Wrapf(err, "%s request failed", h)
	}
	return nil
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Sync waits for the backend to process all the requests sent before.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	_, err := s.call(ctx, wire.Sync, nil, 1)
	return err
}

// Exit asks the backend process to terminate.
// The session is still open and needs to be closed.
func (s *Session) Exit(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	log.Printf("tiles: client %d asks the backend to exit", s.clientID)
	return s.send(ctx, wire.Exit, nil)
}

// Close deletes the arrays released since the last command,
// disconnects from the backend, and closes the transport.
// Arrays of the session cannot be used after Close.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.deletions.count > 0 {
		var payload wire.Buffer
		s.deletions.appendTo(&payload)
		err = multierr.Append(err, s.send(ctx, wire.Delete, payload.Bytes()))
		s.deletions.reset()
	}
	err = multierr.Append(err, s.send(ctx, wire.Disconnect, wire.EncodeDisconnect(s.clientID)))
	err = multierr.Append(err, s.tr.Close())
	log.Printf("tiles: client %d disconnected", s.clientID)
	return err
}
