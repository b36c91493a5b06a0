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

	"github.com/amazechain/aedpos/params"
	"github.com/urfave/cli/v2"
)

var (
	cfgFile   string
	chainName string
)

var rootCmd = []*cli.Command{
	{
		Name:    "version",
		Aliases: []string{"v"},
		Action: func(context *cli.Context) error {
			fmt.Println(params.VersionWithCommit(params.GitCommit))
			return nil
		},
	},
}

var configFlag = []cli.Flag{
	&cli.StringFlag{
		Name:        "config",
		Usage:       "Loading a Configuration File",
		Destination: &cfgFile,
	},
	&cli.StringFlag{
		Name:        "chain",
		Usage:       "predefined chain config (main, side, dev)",
		Value:       "",
		Destination: &chainName,
	},
}

var settingFlag = []cli.Flag{
	&cli.StringFlag{
		Name:        "data.dir",
		Usage:       "data save dir",
		Value:       DefaultConfig.NodeCfg.DataDir,
		Destination: &DefaultConfig.NodeCfg.DataDir,
	},
	&cli.BoolFlag{
		Name:        "db.memory",
		Usage:       "keep the consensus state in memory",
		Value:       false,
		Destination: &DefaultConfig.DatabaseCfg.IsMem,
	},
}

var loggerFlag = []cli.Flag{
	&cli.StringFlag{
		Name:        "log.name",
		Usage:       "logger file name, empty disables the json log file",
		Value:       DefaultConfig.LoggerCfg.LogFile,
		Destination: &DefaultConfig.LoggerCfg.LogFile,
	},
	&cli.StringFlag{
		Name:        "log.level",
		Usage:       "logger output level (value:[trace,debug,info,warn,error])",
		Value:       DefaultConfig.LoggerCfg.Level,
		Destination: &DefaultConfig.LoggerCfg.Level,
	},
	&cli.IntFlag{
		Name:        "log.maxSize",
		Usage:       "logger file max size M",
		Value:       DefaultConfig.LoggerCfg.MaxSize,
		Destination: &DefaultConfig.LoggerCfg.MaxSize,
	},
	&cli.IntFlag{
		Name:        "log.maxBackups",
		Usage:       "logger file max backups",
		Value:       DefaultConfig.LoggerCfg.MaxBackups,
		Destination: &DefaultConfig.LoggerCfg.MaxBackups,
	},
	&cli.IntFlag{
		Name:        "log.maxAge",
		Usage:       "logger file max age",
		Value:       DefaultConfig.LoggerCfg.MaxAge,
		Destination: &DefaultConfig.LoggerCfg.MaxAge,
	},
	&cli.BoolFlag{
		Name:        "log.compress",
		Usage:       "logger file compress",
		Value:       DefaultConfig.LoggerCfg.Compress,
		Destination: &DefaultConfig.LoggerCfg.Compress,
	},
}

var metricsFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:        "metrics",
		Usage:       "Enable metrics collection and reporting",
		Value:       false,
		Destination: &DefaultConfig.MetricsCfg.Enable,
	},
	&cli.StringFlag{
		Name:        "metrics.addr",
		Usage:       "Enable stand-alone metrics HTTP server listening interface",
		Value:       DefaultConfig.MetricsCfg.HTTP,
		Destination: &DefaultConfig.MetricsCfg.HTTP,
	},
	&cli.IntFlag{
		Name:        "metrics.port",
		Usage:       "Metrics HTTP server listening port, 0 disables the server",
		Value:       DefaultConfig.MetricsCfg.Port,
		Destination: &DefaultConfig.MetricsCfg.Port,
	},
	&cli.IntFlag{
		Name:        "metrics.interval",
		Usage:       "seconds between two metrics reports in the log",
		Value:       DefaultConfig.MetricsCfg.LogInterval,
		Destination: &DefaultConfig.MetricsCfg.LogInterval,
	},
}

var simulatorFlags = []cli.Flag{
	&cli.IntFlag{
		Name:        "sim.miners",
		Usage:       "number of miners of the first term",
		Value:       DefaultConfig.SimulatorCfg.Miners,
		Destination: &DefaultConfig.SimulatorCfg.Miners,
	},
	&cli.Uint64Flag{
		Name:        "sim.rounds",
		Usage:       "number of rounds to run",
		Value:       DefaultConfig.SimulatorCfg.Rounds,
		Destination: &DefaultConfig.SimulatorCfg.Rounds,
	},
	&cli.IntFlag{
		Name:        "sim.tiny",
		Usage:       "tiny blocks every miner produces after its value",
		Value:       DefaultConfig.SimulatorCfg.TinyBlocks,
		Destination: &DefaultConfig.SimulatorCfg.TinyBlocks,
	},
	&cli.IntSliceFlag{
		Name:  "sim.offline",
		Usage: "indexes of miners that never produce",
	},
}
