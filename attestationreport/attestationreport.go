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
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "ar")

// IAS quote status values
const (
	QuoteStatusOk                          = "OK"
	QuoteStatusSignatureInvalid            = "SIGNATURE_INVALID"
	QuoteStatusGroupRevoked                = "GROUP_REVOKED"
	QuoteStatusSignatureRevoked            = "SIGNATURE_REVOKED"
	QuoteStatusKeyRevoked                  = "KEY_REVOKED"
	QuoteStatusSigrlVersionMismatch        = "SIGRL_VERSION_MISMATCH"
	QuoteStatusGroupOutOfDate              = "GROUP_OUT_OF_DATE"
	QuoteStatusConfigurationNeeded         = "CONFIGURATION_NEEDED"
	QuoteStatusSwHardeningNeeded           = "SW_HARDENING_NEEDED"
	QuoteStatusConfigurationAndSwHardening = "CONFIGURATION_AND_SW_HARDENING_NEEDED"
)

// ReportBody is the IAS attestation verification report as defined by the
// IAS API specification (version 4)
type ReportBody struct {
	Id                    string   `json:"id"`
	Timestamp             string   `json:"timestamp"`
	Version               uint64   `json:"version"`
	EpidPseudonym         []byte   `json:"epidPseudonym,omitempty"`
	AdvisoryURL           string   `json:"advisoryURL,omitempty"`
	AdvisoryIDs           []string `json:"advisoryIDs,omitempty"`
	IsvEnclaveQuoteStatus string   `json:"isvEnclaveQuoteStatus"`
	PlatformInfoBlob      string   `json:"platformInfoBlob,omitempty"`
	IsvEnclaveQuoteBody   string   `json:"isvEnclaveQuoteBody"`
	Nonce                 string   `json:"nonce,omitempty"`
	RevocationReason      *uint    `json:"revocationReason,omitempty"`
	PseManifestStatus     string   `json:"pseManifestStatus,omitempty"`
	PseManifestHash       string   `json:"pseManifestHash,omitempty"`
}

// AttestationReport is the IAS response together with its signature. The
// signature is computed over the exact bytes of the report member, which are
// therefore kept as received
type AttestationReport struct {
	Report    ReportBody
	ReportSig string
	raw       json.RawMessage
}

type attestationReportWire struct {
	Report    json.RawMessage `json:"report"`
	ReportSig string          `json:"reportsig"`
}

// NewAttestationReport wraps raw report body bytes and a base64 encoded
// signature as received from IAS in the response body and the
// X-IASReport-Signature header
func NewAttestationReport(body []byte, sig string) (*AttestationReport, error) {
	r := &AttestationReport{
		ReportSig: sig,
		raw:       append(json.RawMessage(nil), body...),
	}
	if err := json.Unmarshal(body, &r.Report); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal report body: %v", ErrMalformedInput, err)
	}
	return r, nil
}

// ParseAttestationReport parses a JSON encoded {"report":...,"reportsig":...}
func ParseAttestationReport(data []byte) (*AttestationReport, error) {
	r := new(AttestationReport)
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AttestationReport) UnmarshalJSON(data []byte) error {
	var wire attestationReportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: failed to unmarshal attestation report: %v", ErrMalformedInput, err)
	}
	if len(wire.Report) == 0 || bytes.Equal(wire.Report, []byte("null")) {
		return fmt.Errorf("%w: attestation report does not contain a report", ErrMalformedInput)
	}
	var body ReportBody
	if err := json.Unmarshal(wire.Report, &body); err != nil {
		return fmt.Errorf("%w: failed to unmarshal report body: %v", ErrMalformedInput, err)
	}
	r.Report = body
	r.ReportSig = wire.ReportSig
	r.raw = append(json.RawMessage(nil), wire.Report...)
	return nil
}

// MarshalJSON writes the report with the body bytes unchanged, so that the
// signature stays valid
func (r AttestationReport) MarshalJSON() ([]byte, error) {
	body := r.raw
	if body == nil {
		var err error
		body, err = json.Marshal(r.Report)
		if err != nil {
			return nil, err
		}
	}
	sig, err := json.Marshal(r.ReportSig)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(body)+len(sig)+24)
	buf = append(buf, `{"report":`...)
	buf = append(buf, body...)
	buf = append(buf, `,"reportsig":`...)
	buf = append(buf, sig...)
	buf = append(buf, '}')
	return buf, nil
}

// Body returns the report body bytes the signature is computed over
func (r *AttestationReport) Body() []byte {
	if r.raw == nil {
		body, err := json.Marshal(r.Report)
		if err != nil {
			return nil
		}
		r.raw = body
	}
	return r.raw
}

// BodyDigest returns the SHA-256 digest of the report body
func (r *AttestationReport) BodyDigest() [sha256.Size]byte {
	return sha256.Sum256(r.Body())
}

// Signature returns the decoded report signature
func (r *AttestationReport) Signature() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(r.ReportSig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode report signature: %v", ErrMalformedInput, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty report signature", ErrMalformedInput)
	}
	return sig, nil
}

// QuoteBody returns the decoded isvEnclaveQuoteBody
func (r *AttestationReport) QuoteBody() ([]byte, error) {
	q, err := base64.StdEncoding.DecodeString(r.Report.IsvEnclaveQuoteBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode quote body: %v", ErrMalformedInput, err)
	}
	return q, nil
}
