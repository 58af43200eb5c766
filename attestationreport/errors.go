// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
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

package attestationreport

import (
	"errors"
)

// Error kinds. Every error returned by the verification and ledger
// operations wraps exactly one of these.
var (
	ErrMalformedInput     = errors.New("malformed input")
	ErrAttestationInvalid = errors.New("attestation invalid")
	ErrClaimMismatch      = errors.New("claim mismatch")
	ErrReplayedGroupId    = errors.New("replayed group id")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindMalformedInput     ErrorKind = "MalformedInput"
	KindAttestationInvalid ErrorKind = "AttestationInvalid"
	KindClaimMismatch      ErrorKind = "ClaimMismatch"
	KindReplayedGroupId    ErrorKind = "ReplayedGroupId"
	KindDivisionByZero     ErrorKind = "DivisionByZero"
	KindArithmeticOverflow ErrorKind = "ArithmeticOverflow"
	KindInternal           ErrorKind = "Internal"
)

// KindOf returns the kind of the error. Errors that do not wrap one of
// the error kinds, such as storage failures, are reported as internal
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrAttestationInvalid):
		return KindAttestationInvalid
	case errors.Is(err, ErrClaimMismatch):
		return KindClaimMismatch
	case errors.Is(err, ErrReplayedGroupId):
		return KindReplayedGroupId
	case errors.Is(err, ErrDivisionByZero):
		return KindDivisionByZero
	case errors.Is(err, ErrArithmeticOverflow):
		return KindArithmeticOverflow
	default:
		return KindInternal
	}
}

func (k ErrorKind) String() string {
	return string(k)
}
