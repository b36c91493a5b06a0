// Copyright 2022 The AmazeChain Authors
// This file is part of the AmazeChain library.
//
// The AmazeChain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The AmazeChain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the AmazeChain library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/amazechain/aedpos/params"
	"github.com/urfave/cli/v2"
)

func main() {
	flags := append(configFlag, loggerFlag...)
	flags = append(flags, settingFlag...)
	flags = append(flags, metricsFlags...)

	rootCmd = append(rootCmd, initCommand, simulateCommand, roundCommand)

	app := &cli.App{
		Name:                   "aedpos",
		Usage:                  "AEDPoS consensus tools",
		Flags:                  flags,
		Commands:               rootCmd,
		Version:                params.VersionWithCommit(params.GitCommit),
		UseShortOptionHandling: true,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "failed aedpos setup %v\n", err)
		os.Exit(1)
	}
}
