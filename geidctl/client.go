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
	"bytes"
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/urfave/cli/v3"

	"github.com/geid-rewards/geidpot/api"
)

// request sends req as CBOR to the CoAP endpoint of geidpotd and decodes
// the response into resp
func request(ctx context.Context, cmd *cli.Command, endpoint string, req, resp any) error {

	addr := cmd.Root().String(addrFlag)

	log.Debugf("Sending coap request %v to %v", endpoint, addr)

	ctx, cancel := context.WithTimeout(ctx, cmd.Root().Duration(timeoutFlag))
	defer cancel()

	conn, err := udp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to dial %v: %w", addr, err)
	}
	defer conn.Close()

	payload, err := cbor.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	r, err := conn.Post(ctx, endpoint, message.AppCBOR, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	body, err := r.ReadBody()
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	log.Debugf("Received coap response code %v", r.Code().String())

	if r.Code() != codes.Content {
		var e api.ErrorResponse
		if err := cbor.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("server returned coap error code %v", r.Code().String())
		}
		return fmt.Errorf("server returned coap error code %v: %v: %v", r.Code().String(), e.Kind, e.Msg)
	}

	if err := cbor.Unmarshal(body, resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
