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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/geid-rewards/geidpot/api"
	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/ledger"
)

const requestIdHeader = "X-Request-Id"

type httpServer struct {
	svc   *service
	token []byte
}

func init() {
	servers = append(servers, server{
		name: "HTTP",
		addr: func(c *config) string { return c.HttpAddr },
		serve: func(addr string, svc *service, c *config) error {
			s := &httpServer{svc: svc, token: c.token}
			return s.router().Run(addr)
		},
	})
}

func (s *httpServer) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", requestIdHeader},
	}))

	router.POST("/claim", s.handleClaim)
	router.POST("/donate", s.handleDonate)
	router.GET("/pot", s.handleGetPot)
	router.GET("/donors", s.handleGetDonors)
	router.GET("/claimants", s.handleGetClaimants)
	router.GET("/groupids", s.handleGetGroupIds)

	return router
}

// requestLogger tags every request with an ID and logs the outcome
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("requestId", id)
		c.Header(requestIdHeader, id)

		c.Next()

		log.WithField("request", id).Infof("%v %v from %v: %v",
			c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status())
	}
}

func (s *httpServer) handleClaim(c *gin.Context) {

	log.Trace("in POST /claim")

	if err := authorize(c.Request, s.token); err != nil {
		sendHttpError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized request: %w", err))
		return
	}

	var req api.ClaimRequest
	if err := readJson(c, &req); err != nil {
		sendHttpError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := s.svc.claim(&req)
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *httpServer) handleDonate(c *gin.Context) {

	log.Trace("in POST /donate")

	if err := authorize(c.Request, s.token); err != nil {
		sendHttpError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized request: %w", err))
		return
	}

	var req api.DonationRequest
	if err := readJson(c, &req); err != nil {
		sendHttpError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := s.svc.donate(&req)
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *httpServer) handleGetPot(c *gin.Context) {
	resp, err := s.svc.rewardPot()
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *httpServer) handleGetDonors(c *gin.Context) {
	req, err := getListRequest(c)
	if err != nil {
		sendHttpError(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.svc.donors(req)
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *httpServer) handleGetClaimants(c *gin.Context) {
	req, err := getListRequest(c)
	if err != nil {
		sendHttpError(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.svc.claimants(req)
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *httpServer) handleGetGroupIds(c *gin.Context) {
	req, err := getListRequest(c)
	if err != nil {
		sendHttpError(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.svc.groupIds(req)
	if err != nil {
		sendHttpError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// readJson decodes the request body. The body is decoded as is, so that the
// raw attestation report bytes of a claim are preserved
func readJson(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, api.MaxMsgLen)
	body, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %v", ar.ErrMalformedInput, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal body: %v", ar.ErrMalformedInput, err)
	}
	return nil
}

func getListRequest(c *gin.Context) (*api.ListRequest, error) {
	page, err := getUint32Query(c, "page", 0)
	if err != nil {
		return nil, err
	}
	pageSize, err := getUint32Query(c, "pageSize", ledger.MaxPageSize)
	if err != nil {
		return nil, err
	}
	return &api.ListRequest{Page: page, PageSize: pageSize}, nil
}

func getUint32Query(c *gin.Context, key string, def uint32) (uint32, error) {
	v, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v must be an unsigned 32 bit integer", ar.ErrMalformedInput, key)
	}
	return uint32(n), nil
}

// statusOf maps operation errors to HTTP status codes
func statusOf(err error) int {
	switch ar.KindOf(err) {
	case ar.KindMalformedInput, ar.KindClaimMismatch:
		return http.StatusBadRequest
	case ar.KindAttestationInvalid:
		return http.StatusForbidden
	case ar.KindReplayedGroupId:
		return http.StatusConflict
	}
	if errors.Is(err, ledger.ErrNotInstantiated) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sendHttpError(c *gin.Context, status int, err error) {
	resp := errorResponse(err)
	if status == http.StatusUnauthorized {
		resp.Kind = "Unauthorized"
	}
	log.WithField("request", c.GetString("requestId")).Warn(resp.Msg)
	c.IndentedJSON(status, resp)
}

func authorize(req *http.Request, refToken []byte) error {
	return checkBearer(req.Header.Get("Authorization"), refToken)
}

// checkBearer verifies an Authorization header value against the configured
// token. Authorization is optional and passes if no token is configured
func checkBearer(authHeader string, refToken []byte) error {
	if refToken == nil {
		return nil
	}

	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("missing or invalid authorization header")
	}

	presentedToken := strings.TrimPrefix(authHeader, "Bearer ")
	presentedToken = strings.TrimSpace(presentedToken)

	if subtle.ConstantTimeCompare(refToken, []byte(presentedToken)) != 1 {
		return fmt.Errorf("failed to verify authorization token")
	}

	return nil
}
