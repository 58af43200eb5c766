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
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/verifier"
)

func claimFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  claimFlag,
			Usage: "JSON file containing the claim {\"address\":[...],\"message\":\"...\"}",
		},
		&cli.StringFlag{
			Name:  addressFlag,
			Usage: "hex encoded claimant address",
		},
		&cli.StringFlag{
			Name:  messageFlag,
			Usage: "claim message",
		},
	}
}

func newAnchorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  anchorFlag,
		Usage: "PEM certificate or public key of the report signing key (default: embedded IAS root)",
	}
}

func pibCommand() *cli.Command {
	return &cli.Command{
		Name:      "pib",
		Usage:     "decode the platform info blob of an attestation report",
		ArgsUsage: "<report.json>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := loadReport(cmd)
			if err != nil {
				return err
			}
			if report.Report.PlatformInfoBlob == "" {
				return errors.New("report does not contain a platform info blob")
			}
			pib, err := ar.DecodePlatformInfoHex(report.Report.PlatformInfoBlob)
			if err != nil {
				return err
			}
			return printJson(cmd, pib)
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "decode the enclave quote body of an attestation report",
		ArgsUsage: "<report.json>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := loadReport(cmd)
			if err != nil {
				return err
			}
			data, err := report.QuoteBody()
			if err != nil {
				return err
			}
			quote, err := ar.DecodeQuoteBody(data)
			if err != nil {
				return err
			}
			return printJson(cmd, quote)
		},
	}
}

func claimHashCommand() *cli.Command {
	return &cli.Command{
		Name:  "claimhash",
		Usage: "print the canonical form and hash of a claim, as committed to in the quote report data",
		Flags: claimFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			claim, err := readClaim(cmd)
			if err != nil {
				return err
			}
			hash := claim.Hash()
			return printJson(cmd, struct {
				Version   int        `json:"version"`
				Canonical string     `json:"canonical"`
				Hash      ar.HexByte `json:"hash"`
			}{
				Version:   ar.ClaimCanonicalizationVersion,
				Canonical: string(claim.Canonicalize()),
				Hash:      hash[:],
			})
		},
	}
}

func digestCommand() *cli.Command {
	return &cli.Command{
		Name:      "digest",
		Usage:     "print the report body digest and the block recovered from the report signature",
		ArgsUsage: "<report.json>",
		Flags:     []cli.Flag{newAnchorFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := loadReport(cmd)
			if err != nil {
				return err
			}
			anchor, err := loadAnchor(cmd)
			if err != nil {
				return err
			}
			sig, err := report.Signature()
			if err != nil {
				return err
			}
			digest := report.BodyDigest()
			err = anchor.VerifyDigest(sig, digest[:])
			return printJson(cmd, struct {
				Digest    ar.HexByte `json:"digest"`
				Recovered ar.HexByte `json:"recovered"`
				Valid     bool       `json:"valid"`
			}{
				Digest:    digest[:],
				Recovered: anchor.Recover(sig),
				Valid:     err == nil,
			})
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "verify an attestation report and a claim offline",
		ArgsUsage: "<report.json>",
		Flags: append(claimFlags(),
			newAnchorFlag(),
			&cli.StringFlag{
				Name:  policyFlag,
				Usage: "JSON quote status policy file",
			},
			&cli.StringFlag{
				Name:  scriptFlag,
				Usage: "JavaScript policy file",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := loadReport(cmd)
			if err != nil {
				return err
			}
			claim, err := readClaim(cmd)
			if err != nil {
				return err
			}
			anchor, err := loadAnchor(cmd)
			if err != nil {
				return err
			}
			policy, err := loadPolicy(cmd)
			if err != nil {
				return err
			}

			result, err := verifier.New(anchor, policy).Verify(report, claim)
			if err != nil {
				return fmt.Errorf("verification failed (%v): %w", ar.KindOf(err), err)
			}
			log.Infof("Verification of report %v successful", result.ReportId)

			return printJson(cmd, result)
		},
	}
}

func loadReport(cmd *cli.Command) (*ar.AttestationReport, error) {
	if cmd.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one report file, got %v arguments", cmd.NArg())
	}
	data, err := os.ReadFile(cmd.Args().First())
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return ar.ParseAttestationReport(data)
}

// readClaim reads the claim from the claim file or the address and
// message flags
func readClaim(cmd *cli.Command) (*ar.ClaimRecord, error) {
	claim := new(ar.ClaimRecord)
	if cmd.IsSet(claimFlag) {
		data, err := os.ReadFile(cmd.String(claimFlag))
		if err != nil {
			return nil, fmt.Errorf("failed to read claim: %w", err)
		}
		if err := json.Unmarshal(data, claim); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claim: %w", err)
		}
		return claim, nil
	}

	if !cmd.IsSet(addressFlag) {
		return nil, fmt.Errorf("either --%v or --%v must be given", claimFlag, addressFlag)
	}
	addr, err := hex.DecodeString(cmd.String(addressFlag))
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	claim.Address = addr
	claim.Message = cmd.String(messageFlag)
	return claim, nil
}

func loadAnchor(cmd *cli.Command) (ar.TrustAnchor, error) {
	if !cmd.IsSet(anchorFlag) {
		return ar.IasRootTrustAnchor(), nil
	}
	data, err := os.ReadFile(cmd.String(anchorFlag))
	if err != nil {
		return ar.TrustAnchor{}, fmt.Errorf("failed to read trust anchor: %w", err)
	}
	return ar.ParseTrustAnchor(data)
}

func loadPolicy(cmd *cli.Command) (verifier.Policy, error) {
	policy := verifier.DefaultPolicy()
	if cmd.IsSet(policyFlag) {
		data, err := os.ReadFile(cmd.String(policyFlag))
		if err != nil {
			return policy, fmt.Errorf("failed to read policy: %w", err)
		}
		if err := json.Unmarshal(data, &policy); err != nil {
			return policy, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
	}
	if cmd.IsSet(scriptFlag) {
		data, err := os.ReadFile(cmd.String(scriptFlag))
		if err != nil {
			return policy, fmt.Errorf("failed to read policy script: %w", err)
		}
		policy.Script = string(data)
	}
	return policy, nil
}
