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
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	ar "github.com/geid-rewards/geidpot/attestationreport"
	"github.com/geid-rewards/geidpot/internal"
	"github.com/geid-rewards/geidpot/ledger"
	"github.com/geid-rewards/geidpot/store"
	"github.com/geid-rewards/geidpot/verifier"
)

type config struct {
	HttpAddr         string `json:"httpAddr,omitempty"`
	CoapAddr         string `json:"coapAddr,omitempty"`
	GrpcAddr         string `json:"grpcAddr,omitempty"`
	SocketAddr       string `json:"socketAddr,omitempty"`
	Network          string `json:"network,omitempty"` // unix, tcp
	Store            string `json:"store"`             // memory, badger, sqlite
	StorePath        string `json:"storePath,omitempty"`
	Serialization    string `json:"serialization"` // JSON, CBOR
	TotalRewardUnits string `json:"totalRewardUnits"`
	TrustAnchor      string `json:"trustAnchor,omitempty"`
	Policy           string `json:"policy,omitempty"`
	PolicyScript     string `json:"policyScript,omitempty"`
	Token            string `json:"token,omitempty"`
	EnvFile          string `json:"envFile,omitempty"`
	LogLevel         string `json:"logLevel"`

	serializer ar.Serializer
	anchor     ar.TrustAnchor
	policy     verifier.Policy
	units      *uint256.Int
	token      []byte
	configDir  string
}

const (
	envToken    = "GEIDPOT_TOKEN"
	envLogLevel = "GEIDPOT_LOG"
)

var (
	logLevels = map[string]logrus.Level{
		"panic": logrus.PanicLevel,
		"fatal": logrus.FatalLevel,
		"error": logrus.ErrorLevel,
		"warn":  logrus.WarnLevel,
		"info":  logrus.InfoLevel,
		"debug": logrus.DebugLevel,
		"trace": logrus.TraceLevel,
	}

	serializers = map[string]ar.Serializer{
		"json": ar.JsonSerializer{},
		"cbor": ar.CborSerializer{},
	}

	backends = []string{store.BackendMemory, store.BackendBadger, store.BackendSqlite}

	log = logrus.WithField("service", "geidpotd")
)

const (
	configFlag        = "config"
	httpAddrFlag      = "http"
	coapAddrFlag      = "coap"
	grpcAddrFlag      = "grpc"
	socketAddrFlag    = "socket"
	networkFlag       = "network"
	storeFlag         = "store"
	storePathFlag     = "storage"
	serializationFlag = "serializer"
	unitsFlag         = "units"
	trustAnchorFlag   = "anchor"
	policyFlag        = "policy"
	policyScriptFlag  = "script"
	tokenFlag         = "token"
	envFileFlag       = "env"
	logFlag           = "log"
)

func getConfig() (*config, error) {

	//
	// Parse configuration from commandline flags and configuration file if
	// specified. Commandline flags supersede configuration file options,
	// environment variables supersede both
	//

	configFile := flag.String(configFlag, "", "configuration file")
	httpAddr := flag.String(httpAddrFlag, "", "Address to serve the HTTP API on")
	coapAddr := flag.String(coapAddrFlag, "", "Address to serve the CoAP API on")
	grpcAddr := flag.String(grpcAddrFlag, "", "Address to serve the gRPC API on")
	socketAddr := flag.String(socketAddrFlag, "", "Address to serve the socket API on")
	network := flag.String(networkFlag, "", "Network for socket API [unix tcp]")
	storeBackend := flag.String(storeFlag, "",
		fmt.Sprintf("Store backend. Possible: %v", strings.Join(backends, ",")))
	storePath := flag.String(storePathFlag, "", "Path of the store (directory for badger, file for sqlite)")
	serialization := flag.String(serializationFlag, "",
		fmt.Sprintf("Possible serializers: %v", strings.Join(maps.Keys(serializers), ",")))
	units := flag.String(unitsFlag, "", "Total reward units of the pot")
	trustAnchor := flag.String(trustAnchorFlag, "",
		"PEM certificate or public key of the report signing key (default: embedded IAS root)")
	policy := flag.String(policyFlag, "", "JSON quote status policy file")
	policyScript := flag.String(policyScriptFlag, "", "JavaScript policy file")
	token := flag.String(tokenFlag, "", "File containing the bearer token for claims and donations")
	envFile := flag.String(envFileFlag, "", "Environment file to load")
	logLevel := flag.String(logFlag, "",
		fmt.Sprintf("Possible logging: %v", strings.Join(maps.Keys(logLevels), ",")))
	flag.Parse()

	c := defaultConfig()

	// Obtain custom configuration from file if specified
	if internal.FlagPassed(configFlag) {
		log.Infof("Loading config from file %v", *configFile)
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read geidpotd config file %v: %v", *configFile, err)
		}
		err = json.Unmarshal(data, c)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geidpotd config: %v", err)
		}
		c.configDir = filepath.Dir(*configFile)
	}

	// Overwrite config file configuration with given command line arguments
	if internal.FlagPassed(httpAddrFlag) {
		c.HttpAddr = *httpAddr
	}
	if internal.FlagPassed(coapAddrFlag) {
		c.CoapAddr = *coapAddr
	}
	if internal.FlagPassed(grpcAddrFlag) {
		c.GrpcAddr = *grpcAddr
	}
	if internal.FlagPassed(socketAddrFlag) {
		c.SocketAddr = *socketAddr
	}
	if internal.FlagPassed(networkFlag) {
		c.Network = *network
	}
	if internal.FlagPassed(storeFlag) {
		c.Store = *storeBackend
	}
	if internal.FlagPassed(storePathFlag) {
		c.StorePath = *storePath
	}
	if internal.FlagPassed(serializationFlag) {
		c.Serialization = *serialization
	}
	if internal.FlagPassed(unitsFlag) {
		c.TotalRewardUnits = *units
	}
	if internal.FlagPassed(trustAnchorFlag) {
		c.TrustAnchor = *trustAnchor
	}
	if internal.FlagPassed(policyFlag) {
		c.Policy = *policy
	}
	if internal.FlagPassed(policyScriptFlag) {
		c.PolicyScript = *policyScript
	}
	if internal.FlagPassed(tokenFlag) {
		c.Token = *token
	}
	if internal.FlagPassed(envFileFlag) {
		c.EnvFile = *envFile
	}
	if internal.FlagPassed(logFlag) {
		c.LogLevel = *logLevel
	}

	if err := c.loadEnv(); err != nil {
		return nil, err
	}

	// Configure the logger
	l, ok := logLevels[strings.ToLower(c.LogLevel)]
	if !ok {
		flag.Usage()
		log.Fatalf("LogLevel %v does not exist", c.LogLevel)
	}
	logrus.SetLevel(l)

	printConfig(c)

	if err := c.prepare(); err != nil {
		return nil, err
	}

	return c, nil
}

func defaultConfig() *config {
	return &config{
		Network:          "unix",
		Store:            store.BackendBadger,
		Serialization:    "cbor",
		TotalRewardUnits: "100",
		LogLevel:         "info",
	}
}

// loadEnv reads the optional environment file and applies the environment
// overrides
func (c *config) loadEnv() error {
	if c.EnvFile != "" {
		p, err := internal.GetFilePath(c.EnvFile, &c.configDir)
		if err != nil {
			return fmt.Errorf("failed to find environment file: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load environment file %v: %w", p, err)
		}
		log.Debugf("Loaded environment from %v", p)
	}
	if l, ok := os.LookupEnv(envLogLevel); ok && l != "" {
		c.LogLevel = l
	}
	if t, ok := os.LookupEnv(envToken); ok && t != "" {
		c.token = []byte(strings.TrimSpace(t))
	}
	return nil
}

// prepare resolves the file references of the configuration
func (c *config) prepare() error {
	var err error

	if c.HttpAddr == "" && c.CoapAddr == "" && c.GrpcAddr == "" && c.SocketAddr == "" {
		return errors.New("please provide at least one of the HTTP, CoAP, gRPC or socket addresses via config or cmdline")
	}

	if !internal.Contains(c.Store, backends) {
		return fmt.Errorf("store backend %v not implemented", c.Store)
	}
	if !strings.EqualFold(c.Store, store.BackendMemory) {
		if c.StorePath == "" {
			return fmt.Errorf("please provide a store path for the %v backend", c.Store)
		}
		if !filepath.IsAbs(c.StorePath) {
			c.StorePath, err = filepath.Abs(filepath.Join(c.configDir, c.StorePath))
			if err != nil {
				return fmt.Errorf("failed to construct path of store: %v", err)
			}
		}
	}
	log.Tracef("Will use %v store %v", c.Store, c.StorePath)

	var ok bool
	c.serializer, ok = serializers[strings.ToLower(c.Serialization)]
	if !ok {
		return fmt.Errorf("serialization Interface %v not implemented", c.Serialization)
	}

	c.units, err = ledger.ParseUint256(c.TotalRewardUnits)
	if err != nil {
		return fmt.Errorf("invalid total reward units: %w", err)
	}
	if c.units.IsZero() {
		log.Warnf("Total reward units are zero, all claims will fail")
	}

	if c.TrustAnchor == "" {
		c.anchor = ar.IasRootTrustAnchor()
	} else {
		data, err := internal.GetFile(c.TrustAnchor, &c.configDir)
		if err != nil {
			return fmt.Errorf("failed to read trust anchor: %w", err)
		}
		c.anchor, err = ar.ParseTrustAnchor(data)
		if err != nil {
			return fmt.Errorf("failed to parse trust anchor: %w", err)
		}
	}

	c.policy = verifier.DefaultPolicy()
	if c.Policy != "" {
		data, err := internal.GetFile(c.Policy, &c.configDir)
		if err != nil {
			return fmt.Errorf("failed to read policy: %w", err)
		}
		if err := json.Unmarshal(data, &c.policy); err != nil {
			return fmt.Errorf("failed to parse policy: %w", err)
		}
	}
	if c.PolicyScript != "" {
		data, err := internal.GetFile(c.PolicyScript, &c.configDir)
		if err != nil {
			return fmt.Errorf("failed to read policy script: %w", err)
		}
		c.policy.Script = string(data)
	}

	if c.token == nil && c.Token != "" {
		data, err := internal.GetFile(c.Token, &c.configDir)
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}
		c.token = []byte(strings.TrimSpace(string(data)))
	}

	return nil
}

func printConfig(c *config) {
	log.Debugf("Using the following configuration:")
	log.Debugf("\tHTTP Listen Address      : %v", c.HttpAddr)
	log.Debugf("\tCoAP Listen Address      : %v", c.CoapAddr)
	log.Debugf("\tgRPC Listen Address      : %v", c.GrpcAddr)
	log.Debugf("\tSocket Listen Address    : %v", c.SocketAddr)
	log.Debugf("\tSocket Network           : %v", c.Network)
	log.Debugf("\tStore                    : %v", c.Store)
	log.Debugf("\tStore Path               : %v", c.StorePath)
	log.Debugf("\tSerialization            : %v", c.Serialization)
	log.Debugf("\tTotal Reward Units       : %v", c.TotalRewardUnits)
	log.Debugf("\tTrust Anchor             : %v", c.TrustAnchor)
	log.Debugf("\tPolicy                   : %v", c.Policy)
	log.Debugf("\tPolicy Script            : %v", c.PolicyScript)
	log.Debugf("\tToken Configured         : %v", c.Token != "" || c.token != nil)
	log.Debugf("\tEnvironment File         : %v", c.EnvFile)
	log.Debugf("\tLogging Level            : %v", c.LogLevel)
}
