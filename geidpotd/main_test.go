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
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal/testutil"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/rewardpot"
	"github.com/geid-rewards/geidpot/store"
	"github.com/geid-rewards/geidpot/verifier"
)

var testTime = time.Date(2023, 11, 23, 11, 47, 5, 0, time.UTC)

// newTestService returns a service on an in-memory pot with the given total
// reward units, verifying reports against the test signing key
func newTestService(t *testing.T, units uint64) *service {
	t.Helper()
	anchor := ar.TrustAnchorFromPublicKey(&testutil.SigningKey(t).PublicKey)
	pot := rewardpot.New(store.NewMemory(), ledger.New(ar.CborSerializer{}),
		verifier.New(anchor, verifier.DefaultPolicy()),
		rewardpot.WithClock(func() time.Time { return testTime }))
	_, err := pot.Instantiate(uint256.NewInt(units))
	require.NoError(t, err)
	return &service{pot: pot}
}

func sampleClaim() ar.ClaimRecord {
	return ar.ClaimRecord{
		Address: testutil.SampleClaimAddress,
		Message: testutil.SampleClaimMessage,
	}
}

// signedSampleReport returns the sample report body signed with the test key
func signedSampleReport(t *testing.T) []byte {
	t.Helper()
	return testutil.Sign(t, testutil.SigningKey(t), testutil.SampleReportBody(t))
}

// claimBody builds a JSON claim request embedding the report verbatim
func claimBody(t *testing.T, report []byte, claim ar.ClaimRecord) []byte {
	t.Helper()
	c, err := json.Marshal(claim)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`{"report":%s,"claim":%s}`, report, c))
}
