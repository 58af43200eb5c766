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
	"fmt"

	"github.com/holiman/uint256"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/rewardpot"
)

// service translates API requests into reward pot operations. It is shared
// by all servers
type service struct {
	pot *rewardpot.Pot
}

func (s *service) claim(req *api.ClaimRequest) (*api.ClaimResponse, error) {
	report, err := ar.ParseAttestationReport(req.Report)
	if err != nil {
		return nil, err
	}

	res, err := s.pot.Claim(report, &req.Claim)
	if err != nil {
		return nil, err
	}

	return &api.ClaimResponse{
		Claimant:     res.Claimant,
		GroupId:      res.GroupId,
		Amount:       res.Amount.Dec(),
		RewardShares: res.Reward.RewardShares.String(),
		ClaimTime:    res.Reward.ClaimTime,
		ReportId:     res.Verification.ReportId,
		QuoteStatus:  res.Verification.QuoteStatus,
	}, nil
}

func (s *service) donate(req *api.DonationRequest) (*api.DonationResponse, error) {
	amount, err := ledger.ParseUint256(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid donation amount: %w", err)
	}

	res, err := s.pot.Donate(req.Donor, amount)
	if err != nil {
		return nil, err
	}

	return &api.DonationResponse{
		Donor:        res.Donor,
		Amount:       res.Amount.Dec(),
		DonationSize: res.Donation.DonationSize.Dec(),
		LastDonation: res.Donation.LastDonation,
		PotOfRewards: res.PotOfRewards.Dec(),
	}, nil
}

func (s *service) rewardPot() (*api.PotResponse, error) {
	pot, err := s.pot.RewardPot()
	if err != nil {
		return nil, err
	}
	return &api.PotResponse{
		TotalRewardUnits: pot.TotalRewardUnits.Dec(),
		GeidCount:        pot.GeidCount.Dec(),
		PotOfRewards:     pot.PotOfRewards.Dec(),
	}, nil
}

func (s *service) donors(req *api.ListRequest) (*api.DonorsResponse, error) {
	donors, err := s.pot.Donors(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	resp := &api.DonorsResponse{
		Page:     req.Page,
		PageSize: ledger.EffectivePageSize(req.PageSize),
		Donors:   make([]api.Donor, 0, len(donors)),
	}
	for _, d := range donors {
		resp.Donors = append(resp.Donors, api.Donor{
			Address:      d.Address,
			DonationSize: dec(d.DonationSize),
			LastDonation: d.LastDonation,
		})
	}
	return resp, nil
}

func (s *service) claimants(req *api.ListRequest) (*api.ClaimantsResponse, error) {
	claimants, err := s.pot.Claimants(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	resp := &api.ClaimantsResponse{
		Page:      req.Page,
		PageSize:  ledger.EffectivePageSize(req.PageSize),
		Claimants: make([]api.Claimant, 0, len(claimants)),
	}
	for _, c := range claimants {
		resp.Claimants = append(resp.Claimants, api.Claimant{
			Address:      c.Address,
			RewardShares: c.RewardShares.String(),
			ClaimTime:    c.ClaimTime,
		})
	}
	return resp, nil
}

func (s *service) groupIds(req *api.ListRequest) (*api.GroupIdsResponse, error) {
	gids, err := s.pot.SeenGroupIds(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	resp := &api.GroupIdsResponse{
		Page:     req.Page,
		PageSize: ledger.EffectivePageSize(req.PageSize),
		GroupIds: make([]api.SeenGroupId, 0, len(gids)),
	}
	for _, g := range gids {
		resp.GroupIds = append(resp.GroupIds, api.SeenGroupId{
			GroupId:  g.GroupId,
			Claimant: g.Claimant,
		})
	}
	return resp, nil
}

// errorResponse converts an operation error into the API error format
func errorResponse(err error) *api.ErrorResponse {
	return &api.ErrorResponse{
		Kind: ar.KindOf(err).String(),
		Msg:  err.Error(),
	}
}

func dec(u *uint256.Int) string {
	if u == nil {
		return "0"
	}
	return u.Dec()
}
