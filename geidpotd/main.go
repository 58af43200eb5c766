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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/daemon"

	"github.com/geid-rewards/geidpot/internal"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/rewardpot"
	"github.com/geid-rewards/geidpot/store"
	"github.com/geid-rewards/geidpot/verifier"
)

// server is an API server serving the reward pot on the configured address
type server struct {
	name  string
	addr  func(c *config) string
	serve func(addr string, svc *service, c *config) error
}

var servers []server

func main() {

	log.Infof("Starting geidpotd %v", internal.GetVersion())

	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {

	c, err := getConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(c.Store, c.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	pot := rewardpot.New(st, ledger.New(c.serializer), verifier.New(c.anchor, c.policy))

	p, err := pot.EnsureInstantiated(c.units)
	if err != nil {
		return fmt.Errorf("failed to instantiate reward pot: %w", err)
	}
	log.Infof("Reward pot: %v total reward units, %v claims, %v pot of rewards",
		p.TotalRewardUnits.Dec(), p.GeidCount.Dec(), p.PotOfRewards.Dec())

	svc := &service{pot: pot}

	errc := make(chan error, len(servers))
	for _, s := range servers {
		addr := s.addr(c)
		if addr == "" {
			continue
		}
		go func(s server, addr string) {
			log.Infof("Starting %v server on %v", s.name, addr)
			if err := s.serve(addr, svc, c); err != nil {
				errc <- fmt.Errorf("%v server failed: %w", s.name, err)
				return
			}
			errc <- fmt.Errorf("%v server stopped", s.name)
		}(s, addr)
	}

	if err := notifySystemd(daemon.SdNotifyReady, "STATUS=Serving reward pot"); err != nil {
		log.Warnf("Failed to notify systemd: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-errc:
	case s := <-sig:
		log.Infof("Received %v, shutting down", s)
	}

	if err := notifySystemd(daemon.SdNotifyStopping); err != nil {
		log.Warnf("Failed to notify systemd: %v", err)
	}

	if c.SocketAddr != "" && strings.EqualFold(c.Network, "unix") {
		os.Remove(c.SocketAddr)
	}

	return err
}
