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

// Package verifier checks IAS EPID attestation reports and binds them to the
// claim the enclave committed to in its quote.
package verifier

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	ar "github.com/geid-rewards/geidpot/attestationreport"
)

var log = logrus.WithField("service", "verifier")

// Result describes a successfully verified report
type Result struct {
	Type         string               `json:"type"`
	ReportId     string               `json:"reportId"`
	Timestamp    string               `json:"timestamp"`
	QuoteStatus  string               `json:"quoteStatus"`
	AdvisoryIDs  []string             `json:"advisoryIDs,omitempty"`
	GroupId      ar.GroupId           `json:"groupId"`
	PlatformInfo *ar.PlatformInfoBlob `json:"platformInfo"`
	Quote        *ar.QuoteBody        `json:"quote"`
	ClaimHash    ar.HexByte           `json:"claimHash"`
	Claimant     ar.HexByte           `json:"claimant"`
}

type Verifier struct {
	anchor ar.TrustAnchor
	policy Policy
}

// New creates a verifier checking report signatures against the trust
// anchor and report contents against the policy
func New(anchor ar.TrustAnchor, policy Policy) *Verifier {
	return &Verifier{
		anchor: anchor,
		policy: policy,
	}
}

// Verify checks the report and the claim. The structural checks run before
// the signature check. Errors wrap ErrMalformedInput, ErrClaimMismatch or
// ErrAttestationInvalid. Replay of the group id is not checked here
func (v *Verifier) Verify(report *ar.AttestationReport, claim *ar.ClaimRecord) (*Result, error) {
	if report == nil || claim == nil {
		return nil, fmt.Errorf("%w: missing report or claim", ar.ErrMalformedInput)
	}

	log.Debugf("Verifying report %v with quote status %v", report.Report.Id, report.Report.IsvEnclaveQuoteStatus)

	pib, err := ar.DecodePlatformInfoHex(report.Report.PlatformInfoBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode platform info blob: %w", err)
	}

	rawQuote, err := report.QuoteBody()
	if err != nil {
		return nil, err
	}
	quote, err := ar.DecodeQuoteBody(rawQuote)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote body: %w", err)
	}

	claimHash := claim.Hash()
	if !bytes.Equal(claimHash[:], quote.ClaimPayloadHash()) {
		log.Debugf("Claim hash mismatch. Expected: %v, Got: %v",
			hex.EncodeToString(quote.ClaimPayloadHash()), hex.EncodeToString(claimHash[:]))
		return nil, fmt.Errorf("%w: claim hash does not match quote report data", ar.ErrClaimMismatch)
	}

	sig, err := report.Signature()
	if err != nil {
		return nil, err
	}
	digest := report.BodyDigest()
	if err := v.anchor.VerifyDigest(sig, digest[:]); err != nil {
		log.Debugf("Failed to verify signature of report %v: %v", report.Report.Id, err)
		return nil, err
	}

	result := &Result{
		Type:         "Verification Result",
		ReportId:     report.Report.Id,
		Timestamp:    report.Report.Timestamp,
		QuoteStatus:  report.Report.IsvEnclaveQuoteStatus,
		AdvisoryIDs:  report.Report.AdvisoryIDs,
		GroupId:      pib.GroupId,
		PlatformInfo: pib,
		Quote:        quote,
		ClaimHash:    claimHash[:],
		Claimant:     ar.HexByte(claim.Address),
	}

	if err := v.policy.Validate(result); err != nil {
		log.Debugf("Report %v violates policy: %v", report.Report.Id, err)
		return nil, err
	}

	log.Debugf("Verified report %v for EPID group %v", result.ReportId, result.GroupId)

	return result, nil
}
