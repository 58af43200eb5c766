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
	"errors"
	"fmt"
	"net"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/ledger"
)

const grpcServiceName = "geidpot.RewardPot"

func init() {
	servers = append(servers, server{
		name: "gRPC",
		addr: func(c *config) string { return c.GrpcAddr },
		serve: func(addr string, svc *service, c *config) error {
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to start server on %v: %w", addr, err)
			}
			log.Infof("Waiting for requests on %v", listener.Addr())
			if err := newGrpcServer(svc, c.token).Serve(listener); err != nil {
				return fmt.Errorf("failed to serve: %w", err)
			}
			return nil
		},
	})
}

// cborCodec carries the API types on gRPC with the CBOR encoding also used
// by the CoAP and socket servers
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return cbor.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return "cbor"
}

// rewardPotServer is the gRPC service geidpot.RewardPot
type rewardPotServer interface {
	Claim(context.Context, *api.ClaimRequest) (*api.ClaimResponse, error)
	Donate(context.Context, *api.DonationRequest) (*api.DonationResponse, error)
	Pot(context.Context, *api.PotRequest) (*api.PotResponse, error)
	Donors(context.Context, *api.ListRequest) (*api.DonorsResponse, error)
	Claimants(context.Context, *api.ListRequest) (*api.ClaimantsResponse, error)
	GroupIds(context.Context, *api.ListRequest) (*api.GroupIdsResponse, error)
}

var rewardPotServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*rewardPotServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Claim", newRequest[api.ClaimRequest], rewardPotServer.Claim),
		unaryMethod("Donate", newRequest[api.DonationRequest], rewardPotServer.Donate),
		unaryMethod("Pot", newRequest[api.PotRequest], rewardPotServer.Pot),
		unaryMethod("Donors", newListRequest, rewardPotServer.Donors),
		unaryMethod("Claimants", newListRequest, rewardPotServer.Claimants),
		unaryMethod("GroupIds", newListRequest, rewardPotServer.GroupIds),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geidpot/api",
}

func grpcMethod(name string) string {
	return "/" + grpcServiceName + "/" + name
}

func newRequest[Req any]() *Req {
	return new(Req)
}

// Listings without a page size in the request return full pages
func newListRequest() *api.ListRequest {
	return &api.ListRequest{PageSize: ledger.MaxPageSize}
}

// unaryMethod builds the method descriptor for call. newReq provides the
// request with its defaults
func unaryMethod[Req, Resp any](name string, newReq func() *Req,
	call func(rewardPotServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, grpcError(fmt.Errorf("%w: %v", ar.ErrMalformedInput, err))
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(rewardPotServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: grpcMethod(name),
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

type grpcServer struct {
	svc   *service
	token []byte
}

func newGrpcServer(svc *service, token []byte) *grpc.Server {
	s := &grpcServer{svc: svc, token: token}
	srv := grpc.NewServer(
		grpc.ForceServerCodec(cborCodec{}),
		grpc.UnaryInterceptor(s.intercept),
	)
	srv.RegisterService(&rewardPotServiceDesc, s)
	return srv
}

func (s *grpcServer) Claim(_ context.Context, req *api.ClaimRequest) (*api.ClaimResponse, error) {
	resp, err := s.svc.claim(req)
	return resp, grpcError(err)
}

func (s *grpcServer) Donate(_ context.Context, req *api.DonationRequest) (*api.DonationResponse, error) {
	resp, err := s.svc.donate(req)
	return resp, grpcError(err)
}

func (s *grpcServer) Pot(_ context.Context, _ *api.PotRequest) (*api.PotResponse, error) {
	resp, err := s.svc.rewardPot()
	return resp, grpcError(err)
}

func (s *grpcServer) Donors(_ context.Context, req *api.ListRequest) (*api.DonorsResponse, error) {
	resp, err := s.svc.donors(req)
	return resp, grpcError(err)
}

func (s *grpcServer) Claimants(_ context.Context, req *api.ListRequest) (*api.ClaimantsResponse, error) {
	resp, err := s.svc.claimants(req)
	return resp, grpcError(err)
}

func (s *grpcServer) GroupIds(_ context.Context, req *api.ListRequest) (*api.GroupIdsResponse, error) {
	resp, err := s.svc.groupIds(req)
	return resp, grpcError(err)
}

// intercept checks the bearer token of claims and donations and logs
// failed requests
func (s *grpcServer) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {

	log.Debugf("Received gRPC request %v", info.FullMethod)

	if info.FullMethod == grpcMethod("Claim") || info.FullMethod == grpcMethod("Donate") {
		var auth string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("authorization"); len(v) > 0 {
				auth = v[0]
			}
		}
		if err := checkBearer(auth, s.token); err != nil {
			log.Warnf("gRPC request %v unauthorized: %v", info.FullMethod, err)
			return nil, status.Errorf(codes.Unauthenticated, "Unauthorized: %v", err)
		}
	}

	resp, err := handler(ctx, req)
	if err != nil {
		log.Warnf("gRPC request %v failed: %v", info.FullMethod, err)
		return nil, err
	}
	return resp, nil
}

// grpcError converts operation errors into gRPC statuses whose message
// starts with the error kind
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch ar.KindOf(err) {
	case ar.KindMalformedInput, ar.KindClaimMismatch:
		code = codes.InvalidArgument
	case ar.KindAttestationInvalid:
		code = codes.PermissionDenied
	case ar.KindReplayedGroupId:
		code = codes.AlreadyExists
	}
	if errors.Is(err, ledger.ErrNotInstantiated) {
		code = codes.Unavailable
	}
	e := errorResponse(err)
	return status.Errorf(code, "%v: %v", e.Kind, e.Msg)
}
