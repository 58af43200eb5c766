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
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/geid-rewards/geidpot/api"
)

const (
	donorFlag  = "donor"
	amountFlag = "amount"
)

func claimCommand() *cli.Command {
	return &cli.Command{
		Name:      "claim",
		Usage:     "claim a reward from geidpotd with an attestation report",
		ArgsUsage: "<report.json>",
		Flags:     claimFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("expected exactly one report file, got %v arguments", cmd.NArg())
			}
			// The report is sent unchanged, its signature covers the exact bytes
			report, err := os.ReadFile(cmd.Args().First())
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}
			if !json.Valid(report) {
				return fmt.Errorf("report %v is not valid JSON", cmd.Args().First())
			}
			claim, err := readClaim(cmd)
			if err != nil {
				return err
			}

			req := &api.ClaimRequest{
				Report: report,
				Claim:  *claim,
			}
			resp := new(api.ClaimResponse)
			if err := request(ctx, cmd, api.EndpointClaim, req, resp); err != nil {
				return err
			}
			log.Infof("Claimed %v for %v", resp.Amount, resp.Claimant)
			return printJson(cmd, resp)
		},
	}
}

func donateCommand() *cli.Command {
	return &cli.Command{
		Name:  "donate",
		Usage: "donate an amount to the reward pot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     donorFlag,
				Usage:    "hex encoded donor address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     amountFlag,
				Usage:    "amount to donate as unsigned decimal integer",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			donor, err := hex.DecodeString(cmd.String(donorFlag))
			if err != nil {
				return fmt.Errorf("failed to decode donor: %w", err)
			}
			req := &api.DonationRequest{
				Donor:  donor,
				Amount: cmd.String(amountFlag),
			}
			resp := new(api.DonationResponse)
			if err := request(ctx, cmd, api.EndpointDonate, req, resp); err != nil {
				return err
			}
			return printJson(cmd, resp)
		},
	}
}

func potCommand() *cli.Command {
	return &cli.Command{
		Name:  "pot",
		Usage: "print the state of the reward pot",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			resp := new(api.PotResponse)
			if err := request(ctx, cmd, api.EndpointPot, &api.PotRequest{}, resp); err != nil {
				return err
			}
			return printJson(cmd, resp)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list donors, claimants or claimed EPID group ids",
		Commands: []*cli.Command{
			listSubcommand("donors", api.EndpointDonors, func() any { return new(api.DonorsResponse) }),
			listSubcommand("claimants", api.EndpointClaimants, func() any { return new(api.ClaimantsResponse) }),
			listSubcommand("groupids", api.EndpointGroupIds, func() any { return new(api.GroupIdsResponse) }),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowSubcommandHelp(c)
		},
	}
}

func listSubcommand(name, endpoint string, newResp func() any) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: fmt.Sprintf("list %v page by page", name),
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  pageFlag,
				Usage: "zero-based page",
			},
			&cli.UintFlag{
				Name:  pageSizeFlag,
				Usage: "entries per page",
				Value: 100,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req := &api.ListRequest{
				Page:     uint32(cmd.Uint(pageFlag)),
				PageSize: uint32(cmd.Uint(pageSizeFlag)),
			}
			resp := newResp()
			if err := request(ctx, cmd, endpoint, req, resp); err != nil {
				return err
			}
			return printJson(cmd, resp)
		},
	}
}
