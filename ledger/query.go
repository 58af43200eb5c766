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

package ledger

import (
	"fmt"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/store"
)

// MaxPageSize is the largest number of entries a listing returns
const MaxPageSize = 100

type Donor struct {
	Address []byte
	DonationInfo
}

type Claimant struct {
	Address []byte
	RewardInfo
}

type SeenGroupId struct {
	GroupId  ar.GroupId
	Claimant []byte
}

// ListDonors returns the donors on the given zero-based page in ascending
// address order
func (l *Ledger) ListDonors(r store.Reader, page, pageSize uint32) ([]Donor, error) {
	return listPage(r, PrefixDonations, page, pageSize, func(id, value []byte) (Donor, error) {
		var rec donationRecord
		if err := l.s.Unmarshal(value, &rec); err != nil {
			return Donor{}, fmt.Errorf("failed to unmarshal donation of %x: %w", id, err)
		}
		return Donor{Address: id, DonationInfo: *rec.info()}, nil
	})
}

// ListClaimants returns the rewarded claimants on the given page
func (l *Ledger) ListClaimants(r store.Reader, page, pageSize uint32) ([]Claimant, error) {
	return listPage(r, PrefixRewardees, page, pageSize, func(id, value []byte) (Claimant, error) {
		var rec rewardRecord
		if err := l.s.Unmarshal(value, &rec); err != nil {
			return Claimant{}, fmt.Errorf("failed to unmarshal reward of %x: %w", id, err)
		}
		info, err := rec.info()
		if err != nil {
			return Claimant{}, err
		}
		return Claimant{Address: id, RewardInfo: *info}, nil
	})
}

// ListSeenGroupIds returns the consumed group ids on the given page
func (l *Ledger) ListSeenGroupIds(r store.Reader, page, pageSize uint32) ([]SeenGroupId, error) {
	return listPage(r, PrefixSeenGroupIds, page, pageSize, func(id, value []byte) (SeenGroupId, error) {
		if len(id) != ar.GroupIdSize {
			return SeenGroupId{}, fmt.Errorf("invalid stored group id %x", id)
		}
		var rec seenGroupIdRecord
		if err := l.s.Unmarshal(value, &rec); err != nil {
			return SeenGroupId{}, fmt.Errorf("failed to unmarshal seen group id %x: %w", id, err)
		}
		e := SeenGroupId{Claimant: rec.Claimant}
		copy(e.GroupId[:], id)
		return e, nil
	})
}

// EffectivePageSize returns the page size a listing actually uses for the
// requested one. Pages are offset by the effective size, so clients must use
// it to step through a listing
func EffectivePageSize(pageSize uint32) uint32 {
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

func listPage[T any](r store.Reader, prefix []byte, page, pageSize uint32, decode func(id, value []byte) (T, error)) ([]T, error) {
	pageSize = EffectivePageSize(pageSize)
	entries := make([]T, 0, pageSize)
	if pageSize == 0 {
		return entries, nil
	}

	skip := uint64(page) * uint64(pageSize)
	err := r.Iterate(prefix, func(k, value []byte) error {
		if skip > 0 {
			skip--
			return nil
		}
		e, err := decode(append([]byte(nil), k[len(prefix):]...), value)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		if len(entries) == int(pageSize) {
			return store.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	log.Tracef("Listed %v entries of %s on page %v", len(entries), prefix, page)

	return entries, nil
}
