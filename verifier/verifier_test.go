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
	"errors"
	"testing"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal/testutil"
)

func sampleClaim() *ar.ClaimRecord {
	return &ar.ClaimRecord{
		Address: testutil.SampleClaimAddress,
		Message: testutil.SampleClaimMessage,
	}
}

func signedReport(t *testing.T, body []byte) *ar.AttestationReport {
	t.Helper()
	r, err := ar.ParseAttestationReport(testutil.Sign(t, testutil.SigningKey(t), body))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}
	return r
}

func reportBody(t *testing.T, status string, pibFlags byte) []byte {
	t.Helper()
	return testutil.ReportBody(t, testutil.ReportParams{
		Id:          "1",
		Status:      status,
		PlatformHex: testutil.PlatformInfoHex(t, testutil.SampleGroupId, pibFlags),
		Quote:       testutil.SampleQuote(t),
	})
}

func testVerifier(t *testing.T, p Policy) *Verifier {
	t.Helper()
	return New(ar.TrustAnchorFromPublicKey(&testutil.SigningKey(t).PublicKey), p)
}

func TestVerify(t *testing.T) {
	v := testVerifier(t, DefaultPolicy())

	result, err := v.Verify(signedReport(t, testutil.SampleReportBody(t)), sampleClaim())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.GroupId != ar.GroupId(testutil.SampleGroupId) {
		t.Errorf("GroupId = %v, want 00000cb0", result.GroupId)
	}
	if result.QuoteStatus != ar.QuoteStatusConfigurationAndSwHardening {
		t.Errorf("QuoteStatus = %v", result.QuoteStatus)
	}
	if result.ReportId != "200423264892184291776794534127952959503" {
		t.Errorf("ReportId = %v", result.ReportId)
	}
	if string(result.Claimant) != string(testutil.SampleClaimAddress) {
		t.Errorf("Claimant = %x", result.Claimant)
	}
	if result.Quote.IsvProdId != 0 || len(result.Quote.MrEnclave) != 32 {
		t.Errorf("Quote = %+v", result.Quote)
	}
}

func TestVerifyErrors(t *testing.T) {
	wrongClaim := sampleClaim()
	wrongClaim.Message = "Hello world?"

	shortQuote := testutil.ReportBody(t, testutil.ReportParams{
		Id:          "2",
		Status:      ar.QuoteStatusOk,
		PlatformHex: testutil.PlatformInfoHex(t, testutil.SampleGroupId, 0),
		Quote:       testutil.SampleQuote(t)[:431],
	})
	badPib := testutil.ReportBody(t, testutil.ReportParams{
		Id:          "3",
		Status:      ar.QuoteStatusOk,
		PlatformHex: "1502006500",
		Quote:       testutil.SampleQuote(t),
	})

	unsigned, err := ar.ParseAttestationReport([]byte(testutil.SampleReport))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}

	tests := []struct {
		name   string
		report *ar.AttestationReport
		claim  *ar.ClaimRecord
		want   error
	}{
		{"Claim Mismatch", signedReport(t, testutil.SampleReportBody(t)), wrongClaim, ar.ErrClaimMismatch},
		{"Claim Mismatch Before Signature", unsigned, wrongClaim, ar.ErrClaimMismatch},
		{"Foreign Signature", unsigned, sampleClaim(), ar.ErrAttestationInvalid},
		{"Short Quote", signedReport(t, shortQuote), sampleClaim(), ar.ErrMalformedInput},
		{"Short Platform Info", signedReport(t, badPib), sampleClaim(), ar.ErrMalformedInput},
		{"Revoked Status", signedReport(t, reportBody(t, ar.QuoteStatusGroupRevoked, 0)), sampleClaim(), ar.ErrAttestationInvalid},
		{"Revoked Group Flag", signedReport(t, reportBody(t, ar.QuoteStatusOk, ar.QeEpidGroupRevoked)), sampleClaim(), ar.ErrAttestationInvalid},
		{"Missing Claim", unsigned, nil, ar.ErrMalformedInput},
	}
	v := testVerifier(t, DefaultPolicy())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.report, tt.claim)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	r := signedReport(t, reportBody(t, ar.QuoteStatusOk, 0))
	other := signedReport(t, reportBody(t, ar.QuoteStatusSwHardeningNeeded, 0))

	// Signature of one body attached to another
	forged, err := ar.NewAttestationReport(other.Body(), r.ReportSig)
	if err != nil {
		t.Fatalf("NewAttestationReport() error = %v", err)
	}
	v := testVerifier(t, DefaultPolicy())
	if _, err := v.Verify(r, sampleClaim()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if _, err := v.Verify(forged, sampleClaim()); !errors.Is(err, ar.ErrAttestationInvalid) {
		t.Errorf("Verify() error = %v, want %v", err, ar.ErrAttestationInvalid)
	}
}

func TestPolicy(t *testing.T) {
	quote, err := ar.DecodeQuoteBody(testutil.SampleQuote(t))
	if err != nil {
		t.Fatalf("DecodeQuoteBody() error = %v", err)
	}

	tests := []struct {
		name    string
		policy  Policy
		status  string
		flags   byte
		wantErr bool
	}{
		{"Default Ok", DefaultPolicy(), ar.QuoteStatusOk, 0, false},
		{"Default Out Of Date", DefaultPolicy(), ar.QuoteStatusGroupOutOfDate, ar.QeEpidGroupOutOfDate, false},
		{"Default Signature Invalid", DefaultPolicy(), ar.QuoteStatusSignatureInvalid, 0, true},
		{"Default Key Revoked", DefaultPolicy(), ar.QuoteStatusKeyRevoked, 0, true},
		{"Empty Allowlist Uses Default", Policy{}, ar.QuoteStatusSwHardeningNeeded, 0, false},
		{"Revoked Group Allowed", Policy{}, ar.QuoteStatusOk, ar.QeEpidGroupRevoked, false},
		{"Restricted Allowlist", Policy{AcceptedStatuses: []string{ar.QuoteStatusOk}}, ar.QuoteStatusGroupOutOfDate, 0, true},
		{"Lowercase Status", DefaultPolicy(), "ok", 0, true},
		{"Mixed Case Status", DefaultPolicy(), "Group_Out_Of_Date", 0, true},
		{"Lowercase Allowlist Entry", Policy{AcceptedStatuses: []string{"ok"}}, ar.QuoteStatusOk, 0, true},
		{"MrEnclave Allowed", Policy{MrEnclaves: []ar.HexByte{quote.MrEnclave}}, ar.QuoteStatusOk, 0, false},
		{"MrEnclave Not Allowed", Policy{MrEnclaves: []ar.HexByte{make([]byte, 32)}}, ar.QuoteStatusOk, 0, true},
		{"MrSigner Allowed", Policy{MrSigners: []ar.HexByte{make([]byte, 32), quote.MrSigner}}, ar.QuoteStatusOk, 0, false},
		{"MrSigner Not Allowed", Policy{MrSigners: []ar.HexByte{quote.MrEnclave}}, ar.QuoteStatusOk, 0, true},
		{"Script True", Policy{Script: `var obj = JSON.parse(json); obj.groupId == "00000cb0" && obj.quote.signType == 1`}, ar.QuoteStatusOk, 0, false},
		{"Script False", Policy{Script: `var obj = JSON.parse(json); obj.quoteStatus != "OK"`}, ar.QuoteStatusOk, 0, true},
		{"Script Not Boolean", Policy{Script: `"true"`}, ar.QuoteStatusOk, 0, true},
		{"Script Error", Policy{Script: `undefinedFunction()`}, ar.QuoteStatusOk, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testVerifier(t, tt.policy)
			_, err := v.Verify(signedReport(t, reportBody(t, tt.status, tt.flags)), sampleClaim())
			if tt.wantErr && !errors.Is(err, ar.ErrAttestationInvalid) {
				t.Errorf("Verify() error = %v, want %v", err, ar.ErrAttestationInvalid)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Verify() error = %v", err)
			}
		})
	}
}
