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

// Package testutil provides IAS sample data and helpers to create signed
// attestation reports for tests
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"
)

// SampleReport is a real IAS response for an enclave that committed to
// SampleClaim in its report data
const SampleReport = `{"report":{"id":"200423264892184291776794534127952959503","timestamp":"2023-11-23T11:47:05.757595","version":4,"epidPseudonym":"+CUyIi74LPqS6M0NF7YrSxLqPdX3MKs6D6LIPqRG/ZEB4WmxZVvxAJwdwg/0m9cYnUUQguLnJotthX645lAogfJgO8Xg5/91lSegwyUKvHmKgtjOHX/YTbVe/wmgWiBdaL+KmarY0Je459Px/FqGLWLsAF7egPAJRd1Xn88Znrs=","advisoryURL":"https://security-center.intel.com","advisoryIDs":["INTEL-SA-00161","INTEL-SA-00219","INTEL-SA-00289","INTEL-SA-00334","INTEL-SA-00615"],"isvEnclaveQuoteStatus":"CONFIGURATION_AND_SW_HARDENING_NEEDED","platformInfoBlob":"150200650000080000141402040180070000000000000000000D00000C000000020000000000000CB07FA713992F17617F506072BA90D3794110D036E2293096E6BF758122D4E6BB68EE3F69B49BA232441025B331F3FA6E6AD1E70E5D8892E5F6565E5C9FCE9B2A24","isvEnclaveQuoteBody":"AgABALAMAAAPAA8AAAAAAFHK9aSLRQ1iSu/jKG0xSJQAAAAAAAAAAAAAAAAAAAAAFBQCBwGAAQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABQAAAAAAAAAHAAAAAAAAAOPC8qW4QNieBprK/8rbZRDvhmpz06nuVxAO1fhkbuS7AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAc8uUpEUEPvz8ZkFapjVh5WlWaLoAJM/f80T0EhGInHAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAC9zI5dTO9V43CN3I5/OaESDnWs8hiIOaCM/QJA3Uk5oQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},"reportsig":"VEd3XgpDOEeRzHpKDx61yBUr4t74Z/kQztmOFM4nkaF+muCZe2KoMd1men4R6fYJh4U1DHnrI0U/zym0N4g6olLBfQ1otxb67LV7N1ekSLQtaJw+iQxNfkrqzNSnle3eKi08GAWVIrMRFC0UooCMuUyZoIGXBsjLZ/Jq1dldus2LUBGM5KHhxhAUbbxAdrcc6NO211S3DRAAYkQYkoHMgLZwWm73TS9LLCT/8pFvkiTUXbHyHpVhnbGB9jnkMd6y22iFQrIiQ+LZKcHCuvD5I07oPQqCezCq/rMMCR/6WAcumapLScNm5zndIeWnN8KE+8EG698eCw3GTONiXoE4hw=="}`

// SampleClaimMessage and SampleClaimAddress form the claim the enclave of
// SampleReport committed to
const SampleClaimMessage = "Hello world!"

var SampleClaimAddress = []byte{
	31, 3, 24, 28, 4, 10, 7, 8, 19, 25, 4, 12, 13, 22, 1, 12,
	28, 24, 30, 9, 12, 8, 26, 7, 5, 28, 26, 25, 6, 1, 24, 15,
}

// SampleGroupId is the EPID group id of SampleReport
var SampleGroupId = [4]byte{0x00, 0x00, 0x0c, 0xb0}

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// SigningKey returns a 2048 bit RSA key that stands in for the IAS report
// signing key. The key is generated once per test binary
func SigningKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keyErr != nil {
		t.Fatalf("failed to generate signing key: %v", keyErr)
	}
	return key
}

// SampleReportBody returns the raw report member of SampleReport
func SampleReportBody(t testing.TB) []byte {
	t.Helper()
	var wire struct {
		Report json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal([]byte(SampleReport), &wire); err != nil {
		t.Fatalf("failed to unmarshal sample report: %v", err)
	}
	return wire.Report
}

// SampleQuote returns the decoded quote body of SampleReport
func SampleQuote(t testing.TB) []byte {
	t.Helper()
	var body struct {
		Quote string `json:"isvEnclaveQuoteBody"`
	}
	if err := json.Unmarshal(SampleReportBody(t), &body); err != nil {
		t.Fatalf("failed to unmarshal sample report body: %v", err)
	}
	q, err := base64.StdEncoding.DecodeString(body.Quote)
	if err != nil {
		t.Fatalf("failed to decode sample quote: %v", err)
	}
	return q
}

// Sign returns a JSON attestation report with body and a PKCS#1 v1.5
// SHA-256 signature over body created with key
func Sign(t testing.TB, key *rsa.PrivateKey, body []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("failed to sign report: %v", err)
	}
	sigJson, err := json.Marshal(base64.StdEncoding.EncodeToString(sig))
	if err != nil {
		t.Fatalf("failed to marshal signature: %v", err)
	}
	report := append([]byte(`{"report":`), body...)
	report = append(report, `,"reportsig":`...)
	report = append(report, sigJson...)
	return append(report, '}')
}

// ReportParams describes a synthetic IAS report body
type ReportParams struct {
	Id          string
	Status      string
	PlatformHex string
	Quote       []byte
}

// ReportBody creates a report body in the IAS wire format
func ReportBody(t testing.TB, p ReportParams) []byte {
	t.Helper()
	body := struct {
		Id                    string   `json:"id"`
		Timestamp             string   `json:"timestamp"`
		Version               int      `json:"version"`
		AdvisoryURL           string   `json:"advisoryURL"`
		AdvisoryIDs           []string `json:"advisoryIDs"`
		IsvEnclaveQuoteStatus string   `json:"isvEnclaveQuoteStatus"`
		PlatformInfoBlob      string   `json:"platformInfoBlob"`
		IsvEnclaveQuoteBody   string   `json:"isvEnclaveQuoteBody"`
	}{
		Id:                    p.Id,
		Timestamp:             "2023-11-23T11:47:05.757595",
		Version:               4,
		AdvisoryURL:           "https://security-center.intel.com",
		AdvisoryIDs:           []string{"INTEL-SA-00161"},
		IsvEnclaveQuoteStatus: p.Status,
		PlatformInfoBlob:      p.PlatformHex,
		IsvEnclaveQuoteBody:   base64.StdEncoding.EncodeToString(p.Quote),
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal report body: %v", err)
	}
	return data
}

// QuoteWithClaimHash returns a copy of quote with the first half of the
// report data replaced by hash
func QuoteWithClaimHash(quote []byte, hash [32]byte) []byte {
	q := append([]byte(nil), quote...)
	copy(q[368:400], hash[:])
	return q
}

// PlatformInfoHex returns the hex encoded platform info blob of SampleReport
// with the group id replaced by gid and the EPID group flags set to flags
func PlatformInfoHex(t testing.TB, gid [4]byte, flags byte) string {
	t.Helper()
	var body struct {
		Pib string `json:"platformInfoBlob"`
	}
	if err := json.Unmarshal(SampleReportBody(t), &body); err != nil {
		t.Fatalf("failed to unmarshal sample report body: %v", err)
	}
	pib, err := hex.DecodeString(body.Pib)
	if err != nil {
		t.Fatalf("failed to decode platform info blob: %v", err)
	}
	pib[4] = flags
	copy(pib[4+33:4+37], gid[:])
	return hex.EncodeToString(pib)
}
