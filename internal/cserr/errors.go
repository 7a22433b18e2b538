// Copyright 2026 The CloudSync Authors
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

// Package cserr defines the error kinds shared by every port the core
// talks to (Cloud Client, Relational Store, File Cache) so that the core
// can make the propagation decisions in spec.md §7 without type-asserting
// against each collaborator's own error types.
package cserr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error kinds the core reasons about.
type Kind int

const (
	// Internal is the zero value so a zero-valued Error is never mistaken
	// for a recognized, "safe to retry" kind.
	Internal Kind = iota
	NotFound
	Exists
	AccessDenied
	NotADirectory
	Busy
	StorageFull
	CacheEvicted
	Transport
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Exists:
		return "exists"
	case AccessDenied:
		return "access_denied"
	case NotADirectory:
		return "not_a_directory"
	case Busy:
		return "busy"
	case StorageFull:
		return "storage_full"
	case CacheEvicted:
		return "cache_evicted"
	case Transport:
		return "transport"
	default:
		return "internal"
	}
}

// Error is the single error type every port returns, so that callers can
// recover the Kind with errors.As regardless of which collaborator raised
// it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error tagging op with kind.
func New(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or Internal if err does not wrap
// a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NoLocalMutation reports whether kind is one of the kinds that, per
// spec.md §7, imply nothing changed and the caller must not mutate local
// state: Transport and AccessDenied.
func NoLocalMutation(kind Kind) bool {
	return kind == Transport || kind == AccessDenied
}
