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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/exp/maps"
)

const (
	logLevelFlag = "log-level"
	addrFlag     = "addr"
	timeoutFlag  = "timeout"
	anchorFlag   = "anchor"
	policyFlag   = "policy"
	scriptFlag   = "script"
	addressFlag  = "address"
	messageFlag  = "message"
	claimFlag    = "claim"
	pageFlag     = "page"
	pageSizeFlag = "page-size"
	outFlag      = "out"
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

	log = logrus.WithField("service", "geidctl")
)

// newCommand builds a fresh command tree, flags carry parse state
func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "geidctl",
		Usage: "A tool to inspect IAS attestation reports and to interact with the geidpotd reward pot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  logLevelFlag,
				Usage: fmt.Sprintf("set log level. Possible: %v", strings.Join(maps.Keys(logLevels), ",")),
			},
			&cli.StringFlag{
				Name:  addrFlag,
				Usage: "CoAP address of geidpotd",
				Value: "localhost:5683",
			},
			&cli.DurationFlag{
				Name:  timeoutFlag,
				Usage: "timeout of requests to geidpotd",
				Value: 10 * time.Second,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setLogLevel(cmd.String(logLevelFlag))
			return ctx, nil
		},
		Commands: []*cli.Command{
			pibCommand(),
			quoteCommand(),
			claimHashCommand(),
			digestCommand(),
			verifyCommand(),
			claimCommand(),
			donateCommand(),
			potCommand(),
			listCommand(),
			schemaCommand(),
		},
	}
}

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func setLogLevel(level string) {
	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		log.Warnf("LogLevel %v does not exist. Default to info level", level)
		l = logrus.InfoLevel
	}
	logrus.SetLevel(l)
}

// printJson writes v indented to the output of the command
func printJson(cmd *cli.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(data))
	return err
}
