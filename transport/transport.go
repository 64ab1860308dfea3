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

// Package transport defines how requests reach a backend.
package transport

import (
	"context"

	"github.com/gx-org/tiles/wire"
)

type (
	// Transport delivers requests to a backend.
	//
	// A transport is reliable: a request is either delivered or an error is
	// returned. Cancellation and timeouts are implemented by transports using
	// the context passed to each call.
	Transport interface {
		// Call sends a request and waits for a reply of exactly replySize bytes.
		Call(ctx context.Context, h wire.Handler, req []byte, replySize int) ([]byte, error)

		// Send sends a request without waiting for a reply.
		// Requests sent with Send may reach the backend out of order
		// with respect to other requests.
		Send(ctx context.Context, h wire.Handler, req []byte) error

		// Close releases the resources of the transport once all requests
		// have been delivered.
		Close() error
	}

	// Handler processes requests on the backend side.
	Handler interface {
		// Handle processes a request and returns the reply.
		// Requests without reply return a nil reply.
		Handle(h wire.Handler, req []byte) ([]byte, error)
	}
)
