// Copyright 2026 The LendCore Authors
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

package authz

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; every *Error returned by this
// package reports exactly one of them.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRoleSpace  = errors.New("invalid role space")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSecurityViolation = errors.New("security violation")
	ErrStorageFailure    = errors.New("storage failure")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Domain errors
var (
	ErrRoleNotFound       = &Error{Kind: ErrNotFound, Message: "role not found"}
	ErrPermissionNotFound = &Error{Kind: ErrNotFound, Message: "permission not found"}
	ErrModuleNotFound     = &Error{Kind: ErrNotFound, Message: "module not found"}
	ErrUserNotFound       = &Error{Kind: ErrNotFound, Message: "user not found"}
	ErrTenantNotFound     = &Error{Kind: ErrNotFound, Message: "tenant not found"}
	ErrDelegationNotFound = &Error{Kind: ErrNotFound, Message: "delegation not found"}
	ErrAssignmentNotFound = &Error{Kind: ErrNotFound, Message: "assignment not found"}

	ErrPermissionSpaceImmutable = &Error{Kind: ErrInvalidRoleSpace, Message: "permission space cannot change"}
)

// Error is the typed error returned by every write path of the engine.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidSpace(msg string) error {
	return &Error{Kind: ErrInvalidRoleSpace, Message: msg}
}

func permissionDenied(format string, args ...any) error {
	return &Error{Kind: ErrPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func securityViolation(format string, args ...any) error {
	return &Error{Kind: ErrSecurityViolation, Message: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// storageFailure wraps a repository error unless it already carries a domain kind.
func storageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: ErrStorageFailure, Message: op, Err: err}
}

// KindOf returns the kind of err, or nil when err is not a domain error.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidRoleSpace, ErrPermissionDenied, ErrSecurityViolation, ErrStorageFailure, ErrInvalidArgument} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
