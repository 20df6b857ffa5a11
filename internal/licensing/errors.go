// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"errors"
	"fmt"
)

// Code is a machine readable failure reason shared by every transport.
type Code string

const (
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeInvalidKey            Code = "INVALID_KEY"
	CodeNotClaimed            Code = "NOT_CLAIMED"
	CodeHWIDBanned            Code = "HWID_BANNED"
	CodeHWIDMismatch          Code = "HWID_MISMATCH"
	CodeExpired               Code = "EXPIRED"
	CodeKeyBanned             Code = "KEY_BANNED"
	CodeAlreadyClaimedByOther Code = "ALREADY_CLAIMED_BY_OTHER"
	CodeAccountHasOtherKey    Code = "ACCOUNT_HAS_OTHER_KEY"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeGenerationFailed      Code = "GENERATION_FAILED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInternal              Code = "INTERNAL"
)

// Error is a domain failure. Two errors match under errors.Is when their
// codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
	ErrInvalidKey            = &Error{Code: CodeInvalidKey, Message: "Invalid Key"}
	ErrNotClaimed            = &Error{Code: CodeNotClaimed, Message: "Key must be claimed first!"}
	ErrHWIDBanned            = &Error{Code: CodeHWIDBanned, Message: "HWID Blacklisted"}
	ErrHWIDMismatch          = &Error{Code: CodeHWIDMismatch, Message: "Key already used on another device!"}
	ErrExpired               = &Error{Code: CodeExpired, Message: "Key Expired"}
	ErrKeyBanned             = &Error{Code: CodeKeyBanned, Message: "Key is banned"}
	ErrAlreadyClaimedByOther = &Error{Code: CodeAlreadyClaimedByOther, Message: "This key is already claimed by another user."}
	ErrAccountHasOtherKey    = &Error{Code: CodeAccountHasOtherKey, Message: "You can only claim ONE key per account."}
	ErrInsufficientBalance   = &Error{Code: CodeInsufficientBalance, Message: "Insufficient balance"}
	ErrGenerationFailed      = &Error{Code: CodeGenerationFailed, Message: "Failed to generate key"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "Not found"}
	ErrInternal              = &Error{Code: CodeInternal, Message: "Internal server error"}
)

// NewError builds an error with a custom message for code.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidRequest(format string, args ...any) *Error {
	return NewError(CodeInvalidRequest, format, args...)
}

// internal hides a store failure behind INTERNAL while keeping it unwrappable
// for logging.
func internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: ErrInternal.Message, cause: err}
}

// CodeOf returns the code carried by err, INTERNAL for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// AsError converts any error into an *Error, mapping unknown errors to INTERNAL.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return internal(err)
}
