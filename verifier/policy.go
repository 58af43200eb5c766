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

package verifier

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/robertkrimen/otto"
	"golang.org/x/exp/slices"

	ar "github.com/geid-rewards/geidpot/attestationreport"
)

// DefaultAcceptedStatuses are the quote statuses for which the platform is
// considered trustworthy enough to claim a reward
var DefaultAcceptedStatuses = []string{
	ar.QuoteStatusOk,
	ar.QuoteStatusGroupOutOfDate,
	ar.QuoteStatusConfigurationNeeded,
	ar.QuoteStatusSwHardeningNeeded,
	ar.QuoteStatusConfigurationAndSwHardening,
}

// Policy decides whether a cryptographically valid report is acceptable
type Policy struct {
	AcceptedStatuses   []string     `json:"acceptedStatuses,omitempty"`
	RejectRevokedGroup bool         `json:"rejectRevokedGroup"`
	MrEnclaves         []ar.HexByte `json:"mrEnclaves,omitempty"`
	MrSigners          []ar.HexByte `json:"mrSigners,omitempty"`
	// Script is an optional JavaScript policy. The verification result is
	// available as JSON string in the variable 'json', the script must
	// evaluate to a boolean, e.g.:
	//
	//	var obj = JSON.parse(json);
	//	obj.quote.isvSvn >= 1
	Script string `json:"script,omitempty"`
}

func DefaultPolicy() Policy {
	return Policy{
		AcceptedStatuses:   DefaultAcceptedStatuses,
		RejectRevokedGroup: true,
	}
}

// Validate applies the policy to a verification result. All violations are
// reported as ErrAttestationInvalid
func (p *Policy) Validate(result *Result) error {

	accepted := p.AcceptedStatuses
	if len(accepted) == 0 {
		accepted = DefaultAcceptedStatuses
	}
	// Status values are IAS enums and compared exactly
	if !slices.Contains(accepted, result.QuoteStatus) {
		return fmt.Errorf("%w: quote status %v not accepted", ar.ErrAttestationInvalid, result.QuoteStatus)
	}

	if p.RejectRevokedGroup && result.PlatformInfo.GroupRevoked() {
		return fmt.Errorf("%w: EPID group %v revoked", ar.ErrAttestationInvalid, result.GroupId)
	}

	if len(p.MrEnclaves) > 0 && !containsDigest(p.MrEnclaves, result.Quote.MrEnclave) {
		return fmt.Errorf("%w: MRENCLAVE %v not allowed", ar.ErrAttestationInvalid,
			hex.EncodeToString(result.Quote.MrEnclave))
	}
	if len(p.MrSigners) > 0 && !containsDigest(p.MrSigners, result.Quote.MrSigner) {
		return fmt.Errorf("%w: MRSIGNER %v not allowed", ar.ErrAttestationInvalid,
			hex.EncodeToString(result.Quote.MrSigner))
	}

	if p.Script != "" {
		if !validateScript(p.Script, result) {
			return fmt.Errorf("%w: custom policy validation failed", ar.ErrAttestationInvalid)
		}
	}

	return nil
}

// validateScript runs the JavaScript policy against the marshalled result
func validateScript(script string, result *Result) bool {

	log.Debugf("Validating custom javascript policy against report %v", result.ReportId)

	vr, err := json.Marshal(result)
	if err != nil {
		log.Errorf("Failed to marshal verification result: %v", err)
		return false
	}

	vm := otto.New()

	if err := vm.Set("json", string(vr)); err != nil {
		log.Errorf("Failed to set policy input: %v", err)
		return false
	}

	val, err := vm.Run(script)
	if err != nil {
		log.Errorf("Failed run policy validation: %v", err)
		return false
	}

	if !val.IsBoolean() {
		log.Debugf("Failed to convert policy validation result: unsupported type %v", val.Class())
		return false
	}

	ok, err := val.ToBoolean()
	if err != nil {
		log.Errorf("Failed convert policy validation result to bool: %v", err)
		return false
	}

	log.Debugf("Policy Validation: %v", ok)

	return ok
}

func containsDigest(list []ar.HexByte, digest []byte) bool {
	for _, d := range list {
		if bytes.Equal(d, digest) {
			return true
		}
	}
	return false
}
