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

// Package rewardpot combines the verifier and the ledger: every operation is
// executed as one atomic store update, and operations are serialized.
package rewardpot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/store"
	"github.com/geid-rewards/geidpot/verifier"
)

var log = logrus.WithField("service", "rewardpot")

type Pot struct {
	mu       sync.Mutex
	store    store.Store
	ledger   *ledger.Ledger
	verifier *verifier.Verifier
	now      func() time.Time
}

type Option func(*Pot)

// WithClock sets the time source for donation and claim timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pot) {
		p.now = now
	}
}

type ClaimResult struct {
	Claimant     []byte
	GroupId      ar.GroupId
	Amount       *uint256.Int
	Reward       ledger.RewardInfo
	Verification *verifier.Result
}

type DonationResult struct {
	Donor        []byte
	Amount       *uint256.Int
	Donation     ledger.DonationInfo
	PotOfRewards *uint256.Int
}

func New(s store.Store, l *ledger.Ledger, v *verifier.Verifier, opts ...Option) *Pot {
	p := &Pot{
		store:    s,
		ledger:   l,
		verifier: v,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Instantiate creates the reward pot with the given total reward units
func (p *Pot) Instantiate(totalRewardUnits *uint256.Int) (*ledger.RewardPot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pot *ledger.RewardPot
	err := p.store.Update(func(txn store.Txn) error {
		var err error
		pot, err = p.ledger.Instantiate(txn, totalRewardUnits)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pot, nil
}

// EnsureInstantiated returns the stored reward pot, creating it first if
// the store is empty. The units of an existing pot are never changed
func (p *Pot) EnsureInstantiated(totalRewardUnits *uint256.Int) (*ledger.RewardPot, error) {
	pot, err := p.RewardPot()
	if errors.Is(err, ledger.ErrNotInstantiated) {
		log.Infof("Instantiating reward pot with %v total reward units", totalRewardUnits.Dec())
		return p.Instantiate(totalRewardUnits)
	} else if err != nil {
		return nil, err
	}
	if !pot.TotalRewardUnits.Eq(totalRewardUnits) {
		log.Warnf("Reward pot already instantiated with %v total reward units, ignoring configured %v",
			pot.TotalRewardUnits.Dec(), totalRewardUnits.Dec())
	}
	return pot, nil
}

// Claim verifies the report and the claim and pays out the claimant's share
// of the pot. The EPID group id of the report is consumed; a report from an
// already seen group fails with ErrReplayedGroupId. On error nothing is stored
func (p *Pot) Claim(report *ar.AttestationReport, claim *ar.ClaimRecord) (*ClaimResult, error) {
	if claim == nil || len(claim.Address) == 0 {
		return nil, fmt.Errorf("%w: claim without address", ar.ErrMalformedInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	vr, err := p.verifier.Verify(report, claim)
	if err != nil {
		log.Warnf("Rejected claim of %x: %v", []byte(claim.Address), err)
		return nil, err
	}

	claimTime := uint64(p.now().Unix())
	res := &ClaimResult{
		Claimant:     append([]byte(nil), claim.Address...),
		GroupId:      vr.GroupId,
		Verification: vr,
	}

	err = p.store.Update(func(txn store.Txn) error {
		seen, err := p.ledger.IsGroupIdSeen(txn, vr.GroupId)
		if err != nil {
			return err
		}
		if seen {
			return fmt.Errorf("%w: EPID group %v already claimed", ar.ErrReplayedGroupId, vr.GroupId)
		}

		pot, err := p.ledger.LoadPot(txn)
		if err != nil {
			return err
		}
		amount, info, err := p.ledger.ClaimRewards(txn, pot, res.Claimant, claimTime)
		if err != nil {
			return err
		}
		if err := p.ledger.MarkGroupIdSeen(txn, vr.GroupId, res.Claimant); err != nil {
			return err
		}
		res.Amount = amount
		res.Reward = *info
		return nil
	})
	if err != nil {
		log.Warnf("Failed to record claim of %x for EPID group %v: %v", res.Claimant, vr.GroupId, err)
		return nil, err
	}

	log.Infof("Claimant %x paid %v for EPID group %v", res.Claimant, res.Amount.Dec(), res.GroupId)

	return res, nil
}

// Donate adds a non-zero amount to the pot on behalf of the donor
func (p *Pot) Donate(donor []byte, amount *uint256.Int) (*DonationResult, error) {
	if len(donor) == 0 {
		return nil, fmt.Errorf("%w: donation without donor", ar.ErrMalformedInput)
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: donation amount must not be zero", ar.ErrMalformedInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := &DonationResult{
		Donor:  append([]byte(nil), donor...),
		Amount: amount.Clone(),
	}
	t := uint64(p.now().Unix())

	err := p.store.Update(func(txn store.Txn) error {
		pot, err := p.ledger.LoadPot(txn)
		if err != nil {
			return err
		}
		info, err := p.ledger.AddDonation(txn, pot, res.Donor, res.Amount, t)
		if err != nil {
			return err
		}
		res.Donation = *info
		res.PotOfRewards = pot.PotOfRewards.Clone()
		return nil
	})
	if err != nil {
		log.Warnf("Failed to record donation of %x: %v", res.Donor, err)
		return nil, err
	}

	log.Infof("Donor %x donated %v, pot of rewards %v", res.Donor, res.Amount.Dec(), res.PotOfRewards.Dec())

	return res, nil
}

func (p *Pot) RewardPot() (*ledger.RewardPot, error) {
	var pot *ledger.RewardPot
	err := p.store.View(func(r store.Reader) error {
		var err error
		pot, err = p.ledger.LoadPot(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pot, nil
}

func (p *Pot) Donors(page, pageSize uint32) ([]ledger.Donor, error) {
	var l []ledger.Donor
	err := p.store.View(func(r store.Reader) error {
		var err error
		l, err = p.ledger.ListDonors(r, page, pageSize)
		return err
	})
	return l, err
}

func (p *Pot) Claimants(page, pageSize uint32) ([]ledger.Claimant, error) {
	var l []ledger.Claimant
	err := p.store.View(func(r store.Reader) error {
		var err error
		l, err = p.ledger.ListClaimants(r, page, pageSize)
		return err
	})
	return l, err
}

func (p *Pot) SeenGroupIds(page, pageSize uint32) ([]ledger.SeenGroupId, error) {
	var l []ledger.SeenGroupId
	err := p.store.View(func(r store.Reader) error {
		var err error
		l, err = p.ledger.ListSeenGroupIds(r, page, pageSize)
		return err
	})
	return l, err
}
