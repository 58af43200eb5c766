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

// Package ledger keeps the reward pot, the donations, the rewarded claimants
// and the consumed EPID group ids in a key-value store and computes payouts.
// All operations take the store transaction they run in, so that a caller
// can combine checks and writes of one invocation into a single atomic update.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/store"
)

var log = logrus.WithField("service", "ledger")

// Storage namespaces
var (
	KeyRewardPot       = []byte("reward_pot")
	PrefixDonations    = []byte("donations/")
	PrefixRewardees    = []byte("rewardees/")
	PrefixSeenGroupIds = []byte("seen_group_ids/")
)

var (
	ErrNotInstantiated     = errors.New("reward pot not instantiated")
	ErrAlreadyInstantiated = errors.New("reward pot already instantiated")
)

type RewardPot struct {
	TotalRewardUnits *uint256.Int
	// GeidCount is the number of successful claims
	GeidCount    *uint256.Int
	PotOfRewards *uint256.Int
}

type DonationInfo struct {
	DonationSize *uint256.Int
	LastDonation uint64
}

type RewardInfo struct {
	RewardShares Decimal256
	ClaimTime    uint64
}

// Stored forms. Integers are kept as big-endian byte strings
type rewardPotRecord struct {
	TotalRewardUnits []byte `json:"totalRewardUnits" cbor:"0,keyasint"`
	GeidCount        []byte `json:"geidCount" cbor:"1,keyasint"`
	PotOfRewards     []byte `json:"potOfRewards" cbor:"2,keyasint"`
}

type donationRecord struct {
	DonationSize []byte `json:"donationSize" cbor:"0,keyasint"`
	LastDonation uint64 `json:"lastDonation" cbor:"1,keyasint"`
}

type rewardRecord struct {
	RewardShares []byte `json:"rewardShares" cbor:"0,keyasint"`
	ClaimTime    uint64 `json:"claimTime" cbor:"1,keyasint"`
}

type seenGroupIdRecord struct {
	Claimant []byte `json:"claimant" cbor:"0,keyasint"`
}

type Ledger struct {
	s ar.Serializer
}

// New creates a ledger storing its records with the given serializer
func New(s ar.Serializer) *Ledger {
	if s == nil {
		s = ar.CborSerializer{}
	}
	return &Ledger{s: s}
}

func (p *RewardPot) Clone() *RewardPot {
	return &RewardPot{
		TotalRewardUnits: p.TotalRewardUnits.Clone(),
		GeidCount:        p.GeidCount.Clone(),
		PotOfRewards:     p.PotOfRewards.Clone(),
	}
}

// Instantiate creates the reward pot singleton with an empty pot
func (l *Ledger) Instantiate(txn store.Txn, totalRewardUnits *uint256.Int) (*RewardPot, error) {
	ok, err := txn.Has(KeyRewardPot)
	if err != nil {
		return nil, fmt.Errorf("failed to read reward pot: %w", err)
	}
	if ok {
		return nil, ErrAlreadyInstantiated
	}
	pot := &RewardPot{
		TotalRewardUnits: totalRewardUnits.Clone(),
		GeidCount:        new(uint256.Int),
		PotOfRewards:     new(uint256.Int),
	}
	if err := l.SavePot(txn, pot); err != nil {
		return nil, err
	}

	log.Debugf("Instantiated reward pot with %v total reward units", totalRewardUnits.Dec())

	return pot, nil
}

func (l *Ledger) LoadPot(r store.Reader) (*RewardPot, error) {
	var rec rewardPotRecord
	if err := l.load(r, KeyRewardPot, &rec); errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInstantiated
	} else if err != nil {
		return nil, fmt.Errorf("failed to load reward pot: %w", err)
	}
	return &RewardPot{
		TotalRewardUnits: new(uint256.Int).SetBytes(rec.TotalRewardUnits),
		GeidCount:        new(uint256.Int).SetBytes(rec.GeidCount),
		PotOfRewards:     new(uint256.Int).SetBytes(rec.PotOfRewards),
	}, nil
}

func (l *Ledger) SavePot(txn store.Txn, pot *RewardPot) error {
	return l.save(txn, KeyRewardPot, rewardPotRecord{
		TotalRewardUnits: pot.TotalRewardUnits.Bytes(),
		GeidCount:        pot.GeidCount.Bytes(),
		PotOfRewards:     pot.PotOfRewards.Bytes(),
	})
}

// Donation returns the donation info of a donor or store.ErrNotFound
func (l *Ledger) Donation(r store.Reader, donor []byte) (*DonationInfo, error) {
	var rec donationRecord
	if err := l.load(r, key(PrefixDonations, donor), &rec); err != nil {
		return nil, err
	}
	return rec.info(), nil
}

// Reward returns the reward info of a claimant or store.ErrNotFound
func (l *Ledger) Reward(r store.Reader, claimant []byte) (*RewardInfo, error) {
	var rec rewardRecord
	if err := l.load(r, key(PrefixRewardees, claimant), &rec); err != nil {
		return nil, err
	}
	return rec.info()
}

// AddDonation adds the amount to the pot and to the cumulative donation of
// the donor and sets the donor's last donation time. The pot is updated in
// place and written back only if both sums fit into 256 bits
func (l *Ledger) AddDonation(txn store.Txn, pot *RewardPot, donor []byte, amount *uint256.Int, t uint64) (*DonationInfo, error) {
	info, err := l.Donation(txn, donor)
	if errors.Is(err, store.ErrNotFound) {
		info = &DonationInfo{DonationSize: new(uint256.Int)}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load donation info: %w", err)
	}

	potOfRewards, overflow := new(uint256.Int).AddOverflow(pot.PotOfRewards, amount)
	if overflow {
		return nil, fmt.Errorf("%w: pot of rewards %v + %v", ar.ErrArithmeticOverflow, pot.PotOfRewards.Dec(), amount.Dec())
	}
	donationSize, overflow := new(uint256.Int).AddOverflow(info.DonationSize, amount)
	if overflow {
		return nil, fmt.Errorf("%w: donation size %v + %v", ar.ErrArithmeticOverflow, info.DonationSize.Dec(), amount.Dec())
	}

	info.DonationSize = donationSize
	info.LastDonation = t
	err = l.save(txn, key(PrefixDonations, donor), donationRecord{
		DonationSize: info.DonationSize.Bytes(),
		LastDonation: info.LastDonation,
	})
	if err != nil {
		return nil, err
	}

	updated := pot.Clone()
	updated.PotOfRewards = potOfRewards
	if err := l.SavePot(txn, updated); err != nil {
		return nil, err
	}
	*pot = *updated

	log.Debugf("Recorded donation of %v from %x, pot of rewards now %v", amount.Dec(), donor, pot.PotOfRewards.Dec())

	return info, nil
}

// ClaimRewards pays out the claimant's share of the pot. The reward info is
// created with one reward share on the first claim and reused afterwards.
// Callers must ensure the call happens at most once per EPID group id
func (l *Ledger) ClaimRewards(txn store.Txn, pot *RewardPot, claimant []byte, claimTime uint64) (*uint256.Int, *RewardInfo, error) {
	info, err := l.Reward(txn, claimant)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		info = &RewardInfo{
			RewardShares: DecimalOne(),
			ClaimTime:    claimTime,
		}
		created = true
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to load reward info: %w", err)
	}

	amount, err := ClaimableShareOfPot(pot, info)
	if err != nil {
		return nil, nil, err
	}
	geidCount, overflow := new(uint256.Int).AddOverflow(pot.GeidCount, uint256.NewInt(1))
	if overflow {
		return nil, nil, fmt.Errorf("%w: geid count", ar.ErrArithmeticOverflow)
	}

	if created {
		err = l.save(txn, key(PrefixRewardees, claimant), rewardRecord{
			RewardShares: info.RewardShares.Atomics().Bytes(),
			ClaimTime:    info.ClaimTime,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	updated := pot.Clone()
	updated.GeidCount = geidCount
	if err := l.SavePot(txn, updated); err != nil {
		return nil, nil, err
	}
	*pot = *updated

	log.Debugf("Claimant %x receives %v (shares %v, new claimant: %v)", claimant, amount.Dec(), info.RewardShares, created)

	return amount, info, nil
}

// ClaimableShareOfPot computes pot_of_rewards * (reward_shares / total_reward_units).
// The quotient is truncated to 18 fractional digits and the product is
// rounded down. The pot itself is not reduced by paid out amounts
func ClaimableShareOfPot(pot *RewardPot, info *RewardInfo) (*uint256.Int, error) {
	share, err := info.RewardShares.DivUint(pot.TotalRewardUnits)
	if err != nil {
		return nil, err
	}
	return MulUint(pot.PotOfRewards, share)
}

// IsGroupIdSeen reports whether a claim has already consumed the group id
func (l *Ledger) IsGroupIdSeen(r store.Reader, gid ar.GroupId) (bool, error) {
	ok, err := r.Has(key(PrefixSeenGroupIds, gid[:]))
	if err != nil {
		return false, fmt.Errorf("failed to look up group id %v: %w", gid, err)
	}
	return ok, nil
}

// GroupIdClaimant returns the claimant that consumed the group id
func (l *Ledger) GroupIdClaimant(r store.Reader, gid ar.GroupId) ([]byte, error) {
	var rec seenGroupIdRecord
	if err := l.load(r, key(PrefixSeenGroupIds, gid[:]), &rec); err != nil {
		return nil, err
	}
	return rec.Claimant, nil
}

// MarkGroupIdSeen records the group id as consumed by the claimant. Marking
// a group id twice fails with ErrReplayedGroupId
func (l *Ledger) MarkGroupIdSeen(txn store.Txn, gid ar.GroupId, claimant []byte) error {
	seen, err := l.IsGroupIdSeen(txn, gid)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: group id %v", ar.ErrReplayedGroupId, gid)
	}
	return l.save(txn, key(PrefixSeenGroupIds, gid[:]), seenGroupIdRecord{Claimant: claimant})
}

func (l *Ledger) load(r store.Reader, k []byte, v any) error {
	data, err := r.Get(k)
	if err != nil {
		return err
	}
	if err := l.s.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", k, err)
	}
	return nil
}

func (l *Ledger) save(txn store.Txn, k []byte, v any) error {
	data, err := l.s.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", k, err)
	}
	if err := txn.Set(k, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", k, err)
	}
	return nil
}

func (r *donationRecord) info() *DonationInfo {
	return &DonationInfo{
		DonationSize: new(uint256.Int).SetBytes(r.DonationSize),
		LastDonation: r.LastDonation,
	}
}

func (r *rewardRecord) info() (*RewardInfo, error) {
	if len(r.RewardShares) > 32 {
		return nil, fmt.Errorf("invalid stored reward shares length %v", len(r.RewardShares))
	}
	return &RewardInfo{
		RewardShares: NewDecimal256(new(uint256.Int).SetBytes(r.RewardShares)),
		ClaimTime:    r.ClaimTime,
	}, nil
}

func key(prefix, id []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}
