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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v3"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/verifier"
)

var schemaObjects = []any{
	api.ClaimRequest{},
	api.ClaimResponse{},
	api.DonationRequest{},
	api.DonationResponse{},
	api.PotResponse{},
	api.ListRequest{},
	api.DonorsResponse{},
	api.ClaimantsResponse{},
	api.GroupIdsResponse{},
	api.ErrorResponse{},
	ar.ClaimRecord{},
	verifier.Policy{},
	verifier.Result{},
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "generate JSON schema definitions of the API, claim and policy formats",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  outFlag,
				Usage: "directory to write the definitions to (default: print)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return generateSchemas(cmd, cmd.String(outFlag))
		},
	}
}

func generateSchemas(cmd *cli.Command, dir string) error {

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	r := &jsonschema.Reflector{
		ExpandedStruct:            false,
		Anonymous:                 true,
		DoNotReference:            false,
		AllowAdditionalProperties: true,
	}

	for _, o := range schemaObjects {
		schema := r.Reflect(o)

		if dir == "" {
			if err := printJson(cmd, schema); err != nil {
				return err
			}
			continue
		}

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		f := filepath.Join(dir, fmt.Sprintf("%v.json", getName(o)))
		if err := os.WriteFile(f, data, 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		log.Debugf("Wrote %v", f)
	}

	return nil
}

func getName(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
