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

// Contains the API definitions shared by the HTTP, CoAP, gRPC and socket
// servers of geidpotd and by geidctl. Amounts are unsigned 256 bit integers
// in decimal notation.
package api

import (
	"encoding/json"

	ar "github.com/geid-rewards/geidpot/attestationreport"
)

// CoAP endpoints
const (
	EndpointClaim     = "/Claim"
	EndpointDonate    = "/Donate"
	EndpointPot       = "/Pot"
	EndpointDonors    = "/Donors"
	EndpointClaimants = "/Claimants"
	EndpointGroupIds  = "/GroupIds"
)

// Socket message types
const (
	TypeError     uint32 = 0
	TypeClaim     uint32 = 1
	TypeDonate    uint32 = 2
	TypePot       uint32 = 3
	TypeDonors    uint32 = 4
	TypeClaimants uint32 = 5
	TypeGroupIds  uint32 = 6
)

// ClaimRequest carries the IAS attestation report exactly as received,
// {"report":{...},"reportsig":"..."}, and the claim the enclave committed to
type ClaimRequest struct {
	Report json.RawMessage `json:"report" cbor:"0,keyasint"`
	Claim  ar.ClaimRecord  `json:"claim" cbor:"1,keyasint"`
}

type ClaimResponse struct {
	Claimant     ar.HexByte `json:"claimant" cbor:"0,keyasint"`
	GroupId      ar.GroupId `json:"groupId" cbor:"1,keyasint"`
	Amount       string     `json:"amount" cbor:"2,keyasint"`
	RewardShares string     `json:"rewardShares" cbor:"3,keyasint"`
	ClaimTime    uint64     `json:"claimTime" cbor:"4,keyasint"`
	ReportId     string     `json:"reportId" cbor:"5,keyasint"`
	QuoteStatus  string     `json:"quoteStatus" cbor:"6,keyasint"`
}

type DonationRequest struct {
	Donor  ar.HexByte `json:"donor" cbor:"0,keyasint"`
	Amount string     `json:"amount" cbor:"1,keyasint"`
}

type DonationResponse struct {
	Donor        ar.HexByte `json:"donor" cbor:"0,keyasint"`
	Amount       string     `json:"amount" cbor:"1,keyasint"`
	DonationSize string     `json:"donationSize" cbor:"2,keyasint"`
	LastDonation uint64     `json:"lastDonation" cbor:"3,keyasint"`
	PotOfRewards string     `json:"potOfRewards" cbor:"4,keyasint"`
}

type PotRequest struct {
}

type PotResponse struct {
	TotalRewardUnits string `json:"totalRewardUnits" cbor:"0,keyasint"`
	GeidCount        string `json:"geidCount" cbor:"1,keyasint"`
	PotOfRewards     string `json:"potOfRewards" cbor:"2,keyasint"`
}

// ListRequest selects a zero-based page of a listing. Page sizes above the
// server maximum are clamped, the responses carry the size that was applied
type ListRequest struct {
	Page     uint32 `json:"page" cbor:"0,keyasint"`
	PageSize uint32 `json:"pageSize" cbor:"1,keyasint"`
}

type Donor struct {
	Address      ar.HexByte `json:"address" cbor:"0,keyasint"`
	DonationSize string     `json:"donationSize" cbor:"1,keyasint"`
	LastDonation uint64     `json:"lastDonation" cbor:"2,keyasint"`
}

type DonorsResponse struct {
	Donors   []Donor `json:"donors" cbor:"0,keyasint"`
	Page     uint32  `json:"page" cbor:"1,keyasint"`
	PageSize uint32  `json:"pageSize" cbor:"2,keyasint"`
}

type Claimant struct {
	Address      ar.HexByte `json:"address" cbor:"0,keyasint"`
	RewardShares string     `json:"rewardShares" cbor:"1,keyasint"`
	ClaimTime    uint64     `json:"claimTime" cbor:"2,keyasint"`
}

type ClaimantsResponse struct {
	Claimants []Claimant `json:"claimants" cbor:"0,keyasint"`
	Page      uint32     `json:"page" cbor:"1,keyasint"`
	PageSize  uint32     `json:"pageSize" cbor:"2,keyasint"`
}

type SeenGroupId struct {
	GroupId  ar.GroupId `json:"groupId" cbor:"0,keyasint"`
	Claimant ar.HexByte `json:"claimant" cbor:"1,keyasint"`
}

type GroupIdsResponse struct {
	GroupIds []SeenGroupId `json:"groupIds" cbor:"0,keyasint"`
	Page     uint32        `json:"page" cbor:"1,keyasint"`
	PageSize uint32        `json:"pageSize" cbor:"2,keyasint"`
}

// ErrorResponse is returned by all servers on failure. Kind is one of the
// error kinds, e.g. ReplayedGroupId, or Internal
type ErrorResponse struct {
	Kind string `json:"kind" cbor:"0,keyasint"`
	Msg  string `json:"msg" cbor:"1,keyasint"`
}

const (
	// Set maximum message length to 10 MB
	MaxMsgLen = 1024 * 1024 * 10
)

func TypeToString(t uint32) string {
	switch t {
	case TypeError:
		return "Error"
	case TypeClaim:
		return "Claim"
	case TypeDonate:
		return "Donate"
	case TypePot:
		return "Pot"
	case TypeDonors:
		return "Donors"
	case TypeClaimants:
		return "Claimants"
	case TypeGroupIds:
		return "GroupIds"
	default:
		return "Unknown"
	}
}
