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
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal"
	"github.com/geid-rewards/geidpot/ledger"
)

func init() {
	servers = append(servers, server{
		name: "socket",
		addr: func(c *config) string { return c.SocketAddr },
		serve: func(addr string, svc *service, c *config) error {
			return serveSocket(c.Network, addr, svc)
		},
	})
}

func serveSocket(network, addr string, svc *service) error {

	log.Infof("Waiting for requests on %v (%v)", addr, network)

	// Remove a socket file left over from an unclean shutdown
	if strings.EqualFold(network, "unix") && internal.FileExists(addr) {
		if err := os.Remove(addr); err != nil {
			return fmt.Errorf("failed to remove stale socket %v: %w", addr, err)
		}
	}

	socket, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	defer socket.Close()

	for {
		conn, err := socket.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		go handleIncoming(conn, svc)
	}
}

// handleIncoming serves a single request per connection
func handleIncoming(conn net.Conn, svc *service) {
	defer conn.Close()

	payload, reqType, err := api.Receive(conn)
	if err != nil {
		api.SendError(conn, ar.KindMalformedInput.String(), "failed to receive: %v", err)
		return
	}

	log.Debugf("Received %v request", api.TypeToString(reqType))

	var resp any
	switch reqType {
	case api.TypeClaim:
		req := new(api.ClaimRequest)
		if err = unmarshalSocketPayload(payload, req); err == nil {
			resp, err = svc.claim(req)
		}
	case api.TypeDonate:
		req := new(api.DonationRequest)
		if err = unmarshalSocketPayload(payload, req); err == nil {
			resp, err = svc.donate(req)
		}
	case api.TypePot:
		resp, err = svc.rewardPot()
	case api.TypeDonors:
		req := &api.ListRequest{PageSize: ledger.MaxPageSize}
		if err = unmarshalSocketPayload(payload, req); err == nil {
			resp, err = svc.donors(req)
		}
	case api.TypeClaimants:
		req := &api.ListRequest{PageSize: ledger.MaxPageSize}
		if err = unmarshalSocketPayload(payload, req); err == nil {
			resp, err = svc.claimants(req)
		}
	case api.TypeGroupIds:
		req := &api.ListRequest{PageSize: ledger.MaxPageSize}
		if err = unmarshalSocketPayload(payload, req); err == nil {
			resp, err = svc.groupIds(req)
		}
	default:
		err = fmt.Errorf("%w: invalid type %v", ar.ErrMalformedInput, reqType)
	}
	if err != nil {
		e := errorResponse(err)
		api.SendError(conn, e.Kind, "%v", e.Msg)
		return
	}

	data, err := cbor.Marshal(resp)
	if err != nil {
		api.SendError(conn, ar.KindInternal.String(), "failed to marshal message: %v", err)
		return
	}

	if err := api.Send(conn, data, reqType); err != nil {
		log.Warnf("Failed to send %v response: %v", api.TypeToString(reqType), err)
	}
}

func unmarshalSocketPayload(payload []byte, req any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := cbor.Unmarshal(payload, req); err != nil {
		return fmt.Errorf("%w: failed to unmarshal request: %v", ar.ErrMalformedInput, err)
	}
	return nil
}
