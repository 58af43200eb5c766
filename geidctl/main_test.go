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

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal"
	"github.com/geid-rewards/geidpot/internal/testutil"
)

// run executes geidctl with args and returns its output
func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), append([]string{"geidctl"}, args...))
	return out.Bytes(), err
}

// testFiles writes a report signed with the test key and the matching
// trust anchor
func testFiles(t *testing.T) (report, anchor string) {
	t.Helper()
	dir := t.TempDir()
	key := testutil.SigningKey(t)

	report = filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(report, testutil.Sign(t, key, testutil.SampleReportBody(t)), 0600))

	p, err := internal.WritePublicKeyPem(&key.PublicKey)
	require.NoError(t, err)
	anchor = filepath.Join(dir, "anchor.pem")
	require.NoError(t, os.WriteFile(anchor, p, 0600))

	return report, anchor
}

func claimArgs() []string {
	return []string{
		"--address", hex.EncodeToString(testutil.SampleClaimAddress),
		"--message", testutil.SampleClaimMessage,
	}
}

func TestClaimHash(t *testing.T) {
	out, err := run(t, append([]string{"claimhash"}, claimArgs()...)...)
	require.NoError(t, err)

	var v struct {
		Version   int        `json:"version"`
		Canonical string     `json:"canonical"`
		Hash      ar.HexByte `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(out, &v))

	claim := ar.ClaimRecord{Address: testutil.SampleClaimAddress, Message: testutil.SampleClaimMessage}
	hash := claim.Hash()
	assert.Equal(t, ar.ClaimCanonicalizationVersion, v.Version)
	assert.Equal(t, string(claim.Canonicalize()), v.Canonical)
	assert.Equal(t, ar.HexByte(hash[:]), v.Hash)

	// Same claim from a file
	f := filepath.Join(t.TempDir(), "claim.json")
	data, err := json.Marshal(claim)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f, data, 0600))
	out2, err := run(t, "claimhash", "--claim", f)
	require.NoError(t, err)
	assert.Equal(t, out, out2)

	_, err = run(t, "claimhash", "--message", "x")
	assert.Error(t, err)
}

func TestVerifyCommand(t *testing.T) {
	report, anchor := testFiles(t)

	out, err := run(t, append([]string{"verify", "--anchor", anchor}, append(claimArgs(), report)...)...)
	require.NoError(t, err)

	var result struct {
		GroupId     ar.GroupId `json:"groupId"`
		QuoteStatus string     `json:"quoteStatus"`
		Claimant    ar.HexByte `json:"claimant"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, ar.GroupId(testutil.SampleGroupId), result.GroupId)
	assert.Equal(t, ar.QuoteStatusConfigurationAndSwHardening, result.QuoteStatus)
	assert.Equal(t, ar.HexByte(testutil.SampleClaimAddress), result.Claimant)

	// Signed by the test key, not the IAS root
	_, err = run(t, append([]string{"verify"}, append(claimArgs(), report)...)...)
	assert.ErrorIs(t, err, ar.ErrAttestationInvalid)

	policy := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(policy, []byte(`{"acceptedStatuses":["OK"]}`), 0600))
	_, err = run(t, append([]string{"verify", "--anchor", anchor, "--policy", policy}, append(claimArgs(), report)...)...)
	assert.ErrorIs(t, err, ar.ErrAttestationInvalid)

	_, err = run(t, "verify", "--anchor", anchor, "--address", "00", report)
	assert.ErrorIs(t, err, ar.ErrClaimMismatch)
}

func TestDecodeCommands(t *testing.T) {
	report, anchor := testFiles(t)

	out, err := run(t, "pib", report)
	require.NoError(t, err)
	var pib ar.PlatformInfoBlob
	require.NoError(t, json.Unmarshal(out, &pib))
	assert.Equal(t, ar.GroupId(testutil.SampleGroupId), pib.GroupId)

	out, err = run(t, "quote", report)
	require.NoError(t, err)
	var quote ar.QuoteBody
	require.NoError(t, json.Unmarshal(out, &quote))
	assert.Equal(t, ar.EpidLinkable, quote.SignType)
	assert.Len(t, quote.ReportData, 64)

	out, err = run(t, "digest", "--anchor", anchor, report)
	require.NoError(t, err)
	var digest struct {
		Digest ar.HexByte `json:"digest"`
		Valid  bool       `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(out, &digest))
	assert.True(t, digest.Valid)
	assert.Len(t, digest.Digest, 32)

	_, err = run(t, "pib")
	assert.Error(t, err)
	_, err = run(t, "quote", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "schema", "--out", dir)
	require.NoError(t, err)

	for _, o := range schemaObjects {
		assert.FileExists(t, filepath.Join(dir, getName(o)+".json"))
	}
}
