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
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal/testutil"
)

// fakeDaemon answers the geidpotd CoAP endpoints with canned responses
type fakeDaemon struct {
	t        *testing.T
	donation api.DonationRequest
	list     api.ListRequest
	claim    api.ClaimRequest
}

func (d *fakeDaemon) start() string {
	d.t.Helper()

	r := mux.NewRouter()
	r.Handle(api.EndpointDonate, mux.HandlerFunc(func(w mux.ResponseWriter, m *mux.Message) {
		d.decode(m, &d.donation)
		d.reply(w, codes.Content, &api.DonationResponse{
			Donor:        d.donation.Donor,
			Amount:       d.donation.Amount,
			DonationSize: d.donation.Amount,
			PotOfRewards: d.donation.Amount,
		})
	}))
	r.Handle(api.EndpointPot, mux.HandlerFunc(func(w mux.ResponseWriter, m *mux.Message) {
		d.reply(w, codes.Content, &api.PotResponse{TotalRewardUnits: "4", GeidCount: "1", PotOfRewards: "32"})
	}))
	r.Handle(api.EndpointDonors, mux.HandlerFunc(func(w mux.ResponseWriter, m *mux.Message) {
		d.decode(m, &d.list)
		d.reply(w, codes.Content, &api.DonorsResponse{
			Donors:   []api.Donor{{Address: []byte("donor"), DonationSize: "42"}},
			Page:     d.list.Page,
			PageSize: 100,
		})
	}))
	r.Handle(api.EndpointClaim, mux.HandlerFunc(func(w mux.ResponseWriter, m *mux.Message) {
		d.decode(m, &d.claim)
		d.reply(w, codes.PreconditionFailed, &api.ErrorResponse{
			Kind: string(ar.KindReplayedGroupId),
			Msg:  "EPID group already claimed",
		})
	}))

	l, err := coapNet.NewListenUDP("udp", "127.0.0.1:0")
	require.NoError(d.t, err)
	srv := udp.NewServer(options.WithMux(r))
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(l)
	}()
	d.t.Cleanup(func() {
		srv.Stop()
		<-done
		l.Close()
	})

	return l.LocalAddr().String()
}

func (d *fakeDaemon) decode(m *mux.Message, v any) {
	body, err := m.Message.ReadBody()
	assert.NoError(d.t, err)
	assert.NoError(d.t, cbor.Unmarshal(body, v))
}

func (d *fakeDaemon) reply(w mux.ResponseWriter, code codes.Code, v any) {
	payload, err := cbor.Marshal(v)
	assert.NoError(d.t, err)
	assert.NoError(d.t, w.SetResponse(code, message.AppCBOR, bytes.NewReader(payload)))
}

func TestOnlineCommands(t *testing.T) {
	d := &fakeDaemon{t: t}
	addr := d.start()

	out, err := run(t, "--addr", addr, "donate", "--donor", "646f6e6f72", "--amount", "42")
	require.NoError(t, err)
	assert.Equal(t, api.DonationRequest{Donor: []byte("donor"), Amount: "42"}, d.donation)
	var donation api.DonationResponse
	require.NoError(t, json.Unmarshal(out, &donation))
	assert.Equal(t, "42", donation.PotOfRewards)

	out, err = run(t, "--addr", addr, "pot")
	require.NoError(t, err)
	var pot api.PotResponse
	require.NoError(t, json.Unmarshal(out, &pot))
	assert.Equal(t, api.PotResponse{TotalRewardUnits: "4", GeidCount: "1", PotOfRewards: "32"}, pot)

	out, err = run(t, "--addr", addr, "list", "donors", "--page", "3", "--page-size", "500")
	require.NoError(t, err)
	assert.Equal(t, api.ListRequest{Page: 3, PageSize: 500}, d.list)
	var donors api.DonorsResponse
	require.NoError(t, json.Unmarshal(out, &donors))
	require.Len(t, donors.Donors, 1)
	assert.Equal(t, uint32(3), donors.Page)
	assert.Equal(t, uint32(100), donors.PageSize)
}

func TestOnlineClaimRejected(t *testing.T) {
	d := &fakeDaemon{t: t}
	addr := d.start()
	report, _ := testFiles(t)

	_, err := run(t, append([]string{"--addr", addr, "claim", report}, claimArgs()...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(ar.KindReplayedGroupId))

	// The report reaches the daemon byte for byte
	assert.Equal(t, testutil.Sign(t, testutil.SigningKey(t), testutil.SampleReportBody(t)), []byte(d.claim.Report))
	assert.Equal(t, testutil.SampleClaimMessage, d.claim.Claim.Message)
}

func TestOnlineUnreachable(t *testing.T) {
	_, err := run(t, "--addr", "127.0.0.1:1", "--timeout", "200ms", "pot")
	assert.Error(t, err)
}
