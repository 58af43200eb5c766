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
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	coap "github.com/plgd-dev/go-coap/v3"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/ledger"
)

type coapServer struct {
	svc *service
}

func init() {
	servers = append(servers, server{
		name: "CoAP",
		addr: func(c *config) string { return c.CoapAddr },
		serve: func(addr string, svc *service, c *config) error {
			s := &coapServer{svc: svc}
			if err := coap.ListenAndServe("udp", addr, s.router()); err != nil {
				return fmt.Errorf("failed to serve: %w", err)
			}
			return nil
		},
	})
}

func (s *coapServer) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Handle(api.EndpointClaim, mux.HandlerFunc(s.claim))
	r.Handle(api.EndpointDonate, mux.HandlerFunc(s.donate))
	r.Handle(api.EndpointPot, mux.HandlerFunc(s.rewardPot))
	r.Handle(api.EndpointDonors, mux.HandlerFunc(s.donors))
	r.Handle(api.EndpointClaimants, mux.HandlerFunc(s.claimants))
	r.Handle(api.EndpointGroupIds, mux.HandlerFunc(s.groupIds))
	return r
}

func (s *coapServer) claim(w mux.ResponseWriter, r *mux.Message) {
	var req api.ClaimRequest
	handleCoap(w, r, &req, func() (any, error) { return s.svc.claim(&req) })
}

func (s *coapServer) donate(w mux.ResponseWriter, r *mux.Message) {
	var req api.DonationRequest
	handleCoap(w, r, &req, func() (any, error) { return s.svc.donate(&req) })
}

func (s *coapServer) rewardPot(w mux.ResponseWriter, r *mux.Message) {
	handleCoap(w, r, nil, func() (any, error) { return s.svc.rewardPot() })
}

func (s *coapServer) donors(w mux.ResponseWriter, r *mux.Message) {
	req := api.ListRequest{PageSize: ledger.MaxPageSize}
	handleCoap(w, r, &req, func() (any, error) { return s.svc.donors(&req) })
}

func (s *coapServer) claimants(w mux.ResponseWriter, r *mux.Message) {
	req := api.ListRequest{PageSize: ledger.MaxPageSize}
	handleCoap(w, r, &req, func() (any, error) { return s.svc.claimants(&req) })
}

func (s *coapServer) groupIds(w mux.ResponseWriter, r *mux.Message) {
	req := api.ListRequest{PageSize: ledger.MaxPageSize}
	handleCoap(w, r, &req, func() (any, error) { return s.svc.groupIds(&req) })
}

// handleCoap decodes the optional CBOR request into req, runs op and sends
// its result or error as CBOR response
func handleCoap(w mux.ResponseWriter, r *mux.Message, req any, op func() (any, error)) {
	if req != nil {
		if err := unmarshalCoapPayload(r, req); err != nil {
			sendCoapError(w, r, fmt.Errorf("%w: %v", ar.ErrMalformedInput, err))
			return
		}
	}

	resp, err := op()
	if err != nil {
		sendCoapError(w, r, err)
		return
	}

	payload, err := cbor.Marshal(resp)
	if err != nil {
		sendCoapError(w, r, fmt.Errorf("failed to marshal response: %w", err))
		return
	}

	SendCoapResponse(w, r, codes.Content, payload)
}

func SendCoapResponse(w mux.ResponseWriter, r *mux.Message, code codes.Code, payload []byte) {
	customResp := w.Conn().AcquireMessage(r.Context())
	defer w.Conn().ReleaseMessage(customResp)
	customResp.SetCode(code)
	customResp.SetToken(r.Token())
	customResp.SetContentFormat(message.AppCBOR)
	customResp.SetBody(bytes.NewReader(payload))
	err := w.Conn().WriteMessage(customResp)
	if err != nil {
		log.Errorf("cannot set response: %v", err)
	}
}

func sendCoapError(w mux.ResponseWriter, r *mux.Message, err error) {
	log.Warnf("CoAP request failed: %v", err)
	payload, merr := cbor.Marshal(errorResponse(err))
	if merr != nil {
		log.Errorf("failed to marshal error response: %v", merr)
		return
	}
	SendCoapResponse(w, r, coapCodeOf(err), payload)
}

// coapCodeOf maps operation errors to CoAP response codes
func coapCodeOf(err error) codes.Code {
	switch ar.KindOf(err) {
	case ar.KindMalformedInput, ar.KindClaimMismatch:
		return codes.BadRequest
	case ar.KindAttestationInvalid:
		return codes.Forbidden
	case ar.KindReplayedGroupId:
		return codes.PreconditionFailed
	}
	if errors.Is(err, ledger.ErrNotInstantiated) {
		return codes.ServiceUnavailable
	}
	return codes.InternalServerError
}

func loggingMiddleware(next mux.Handler) mux.Handler {
	return mux.HandlerFunc(func(w mux.ResponseWriter, r *mux.Message) {
		log.Debugf("ClientAddress %v, %v", w.Conn().RemoteAddr(), r.String())
		next.ServeCOAP(w, r)
	})
}

func unmarshalCoapPayload(r *mux.Message, payload any) error {
	body, err := r.Message.ReadBody()
	if err != nil {
		return fmt.Errorf("failed to read CoAP message body: %v", err)
	}
	// Empty bodies keep the defaults, e.g. of list requests
	if len(body) == 0 {
		return nil
	}
	err = cbor.Unmarshal(body, payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal CoAP message body: %v", err)
	}
	return nil
}
