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

package rewardpot

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal/testutil"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/store"
	"github.com/geid-rewards/geidpot/verifier"
)

var testTime = time.Date(2023, 11, 23, 11, 47, 5, 0, time.UTC)

func newPot(t *testing.T, units uint64) *Pot {
	t.Helper()
	anchor := ar.TrustAnchorFromPublicKey(&testutil.SigningKey(t).PublicKey)
	p := New(store.NewMemory(), ledger.New(ar.CborSerializer{}), verifier.New(anchor, verifier.DefaultPolicy()),
		WithClock(func() time.Time { return testTime }))
	if _, err := p.Instantiate(uint256.NewInt(units)); err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	return p
}

func sampleClaim() *ar.ClaimRecord {
	return &ar.ClaimRecord{
		Address: testutil.SampleClaimAddress,
		Message: testutil.SampleClaimMessage,
	}
}

func sampleReport(t *testing.T) *ar.AttestationReport {
	t.Helper()
	r, err := ar.ParseAttestationReport(testutil.Sign(t, testutil.SigningKey(t), testutil.SampleReportBody(t)))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}
	return r
}

// reportFor creates a signed report for the claim from a platform of the
// given EPID group
func reportFor(t *testing.T, claim *ar.ClaimRecord, gid [4]byte) *ar.AttestationReport {
	t.Helper()
	body := testutil.ReportBody(t, testutil.ReportParams{
		Id:          "synthetic",
		Status:      ar.QuoteStatusOk,
		PlatformHex: testutil.PlatformInfoHex(t, gid, 0),
		Quote:       testutil.QuoteWithClaimHash(testutil.SampleQuote(t), claim.Hash()),
	})
	r, err := ar.ParseAttestationReport(testutil.Sign(t, testutil.SigningKey(t), body))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}
	return r
}

func TestClaim(t *testing.T) {
	p := newPot(t, 100)
	if _, err := p.Donate([]byte("donor"), uint256.NewInt(1000)); err != nil {
		t.Fatalf("Donate() error = %v", err)
	}

	res, err := p.Claim(sampleReport(t), sampleClaim())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if res.Amount.Uint64() != 10 {
		t.Errorf("Amount = %v, want 10", res.Amount.Dec())
	}
	if res.GroupId != ar.GroupId(testutil.SampleGroupId) {
		t.Errorf("GroupId = %v, want 00000cb0", res.GroupId)
	}
	if res.Reward.ClaimTime != uint64(testTime.Unix()) {
		t.Errorf("ClaimTime = %v, want %v", res.Reward.ClaimTime, testTime.Unix())
	}
	if !res.Reward.RewardShares.Equal(ledger.DecimalOne()) {
		t.Errorf("RewardShares = %v, want 1", res.Reward.RewardShares)
	}

	pot, err := p.RewardPot()
	if err != nil {
		t.Fatalf("RewardPot() error = %v", err)
	}
	if pot.GeidCount.Uint64() != 1 || pot.PotOfRewards.Uint64() != 1000 {
		t.Errorf("RewardPot() = geid count %v, pot %v", pot.GeidCount.Dec(), pot.PotOfRewards.Dec())
	}

	gids, err := p.SeenGroupIds(0, 10)
	if err != nil {
		t.Fatalf("SeenGroupIds() error = %v", err)
	}
	if len(gids) != 1 || gids[0].GroupId != ar.GroupId(testutil.SampleGroupId) ||
		!bytes.Equal(gids[0].Claimant, testutil.SampleClaimAddress) {
		t.Errorf("SeenGroupIds() = %+v", gids)
	}

	claimants, err := p.Claimants(0, 10)
	if err != nil {
		t.Fatalf("Claimants() error = %v", err)
	}
	if len(claimants) != 1 || !bytes.Equal(claimants[0].Address, testutil.SampleClaimAddress) {
		t.Errorf("Claimants() = %+v", claimants)
	}
}

func TestClaimReplay(t *testing.T) {
	p := newPot(t, 100)
	if _, err := p.Donate([]byte("donor"), uint256.NewInt(1000)); err != nil {
		t.Fatalf("Donate() error = %v", err)
	}
	if _, err := p.Claim(sampleReport(t), sampleClaim()); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	// Same report again
	_, err := p.Claim(sampleReport(t), sampleClaim())
	if !errors.Is(err, ar.ErrReplayedGroupId) {
		t.Errorf("Claim() error = %v, want %v", err, ar.ErrReplayedGroupId)
	}

	// Different claimant on a platform of the same group
	other := &ar.ClaimRecord{Address: []byte{1, 2, 3}, Message: "other"}
	_, err = p.Claim(reportFor(t, other, testutil.SampleGroupId), other)
	if !errors.Is(err, ar.ErrReplayedGroupId) {
		t.Errorf("Claim() error = %v, want %v", err, ar.ErrReplayedGroupId)
	}

	// Different group succeeds
	res, err := p.Claim(reportFor(t, other, [4]byte{0, 0, 0x0c, 0xb1}), other)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if res.Amount.Uint64() != 10 {
		t.Errorf("Amount = %v, want 10", res.Amount.Dec())
	}

	// Replay prevention keys on the group, so the first claimant is paid
	// again from another platform group
	res, err = p.Claim(reportFor(t, sampleClaim(), [4]byte{0, 0, 0x0c, 0xb2}), sampleClaim())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if res.Amount.Uint64() != 10 {
		t.Errorf("Amount = %v, want 10", res.Amount.Dec())
	}

	pot, err := p.RewardPot()
	if err != nil {
		t.Fatalf("RewardPot() error = %v", err)
	}
	if pot.GeidCount.Uint64() != 3 {
		t.Errorf("GeidCount = %v, want 3", pot.GeidCount.Dec())
	}
	claimants, err := p.Claimants(0, 10)
	if err != nil {
		t.Fatalf("Claimants() error = %v", err)
	}
	if len(claimants) != 2 {
		t.Errorf("len(Claimants()) = %v, want 2", len(claimants))
	}
}

func TestClaimIsAtomic(t *testing.T) {
	p := newPot(t, 0)

	_, err := p.Claim(sampleReport(t), sampleClaim())
	if !errors.Is(err, ar.ErrDivisionByZero) {
		t.Fatalf("Claim() error = %v, want %v", err, ar.ErrDivisionByZero)
	}

	gids, err := p.SeenGroupIds(0, 10)
	if err != nil {
		t.Fatalf("SeenGroupIds() error = %v", err)
	}
	if len(gids) != 0 {
		t.Errorf("SeenGroupIds() = %+v, want none", gids)
	}
	claimants, err := p.Claimants(0, 10)
	if err != nil {
		t.Fatalf("Claimants() error = %v", err)
	}
	if len(claimants) != 0 {
		t.Errorf("Claimants() = %+v, want none", claimants)
	}
}

func TestClaimRejected(t *testing.T) {
	p := newPot(t, 100)

	wrong := sampleClaim()
	wrong.Address = []byte{9}
	tests := []struct {
		name   string
		report *ar.AttestationReport
		claim  *ar.ClaimRecord
		want   error
	}{
		{"Claim Mismatch", sampleReport(t), wrong, ar.ErrClaimMismatch},
		{"Empty Address", sampleReport(t), &ar.ClaimRecord{Message: "x"}, ar.ErrMalformedInput},
		{"Nil Report", nil, sampleClaim(), ar.ErrMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Claim(tt.report, tt.claim); !errors.Is(err, tt.want) {
				t.Errorf("Claim() error = %v, want %v", err, tt.want)
			}
		})
	}

	gids, err := p.SeenGroupIds(0, 10)
	if err != nil {
		t.Fatalf("SeenGroupIds() error = %v", err)
	}
	if len(gids) != 0 {
		t.Errorf("SeenGroupIds() = %+v, want none", gids)
	}
}

func TestDonate(t *testing.T) {
	p := newPot(t, 100)

	for i := 0; i < 2; i++ {
		if _, err := p.Donate([]byte("donor"), uint256.NewInt(10)); err != nil {
			t.Fatalf("Donate() error = %v", err)
		}
	}
	res, err := p.Donate([]byte("second"), uint256.NewInt(5))
	if err != nil {
		t.Fatalf("Donate() error = %v", err)
	}
	if res.PotOfRewards.Uint64() != 25 {
		t.Errorf("PotOfRewards = %v, want 25", res.PotOfRewards.Dec())
	}

	donors, err := p.Donors(0, 10)
	if err != nil {
		t.Fatalf("Donors() error = %v", err)
	}
	if len(donors) != 2 || string(donors[0].Address) != "donor" || donors[0].DonationSize.Uint64() != 20 ||
		donors[0].LastDonation != uint64(testTime.Unix()) {
		t.Errorf("Donors() = %+v", donors)
	}

	if _, err := p.Donate([]byte("donor"), new(uint256.Int)); !errors.Is(err, ar.ErrMalformedInput) {
		t.Errorf("Donate() zero amount error = %v, want %v", err, ar.ErrMalformedInput)
	}
	if _, err := p.Donate(nil, uint256.NewInt(1)); !errors.Is(err, ar.ErrMalformedInput) {
		t.Errorf("Donate() without donor error = %v, want %v", err, ar.ErrMalformedInput)
	}
}

func TestEnsureInstantiated(t *testing.T) {
	p := New(store.NewMemory(), ledger.New(nil), verifier.New(ar.IasRootTrustAnchor(), verifier.DefaultPolicy()))

	pot, err := p.EnsureInstantiated(uint256.NewInt(100))
	if err != nil {
		t.Fatalf("EnsureInstantiated() error = %v", err)
	}
	if pot.TotalRewardUnits.Uint64() != 100 {
		t.Errorf("TotalRewardUnits = %v, want 100", pot.TotalRewardUnits.Dec())
	}

	pot, err = p.EnsureInstantiated(uint256.NewInt(7))
	if err != nil {
		t.Fatalf("EnsureInstantiated() error = %v", err)
	}
	if pot.TotalRewardUnits.Uint64() != 100 {
		t.Errorf("TotalRewardUnits = %v, want 100", pot.TotalRewardUnits.Dec())
	}

	if _, err := p.Instantiate(uint256.NewInt(1)); !errors.Is(err, ledger.ErrAlreadyInstantiated) {
		t.Errorf("Instantiate() error = %v, want %v", err, ledger.ErrAlreadyInstantiated)
	}
}
