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
	"github.com/amazechain/aedpos/conf"
	"github.com/amazechain/aedpos/params"
)

var DefaultConfig = conf.Config{
	NodeCfg: conf.NodeConfig{
		DataDir: "./aedpos/",
		Miner:   false,
	},
	LoggerCfg: conf.LoggerConfig{
		LogFile:    "aedpos.log",
		Level:      "info",
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	},
	DatabaseCfg: conf.DatabaseConfig{
		DBPath: "chaindata",
		IsMem:  false,
	},
	GenesisCfg: conf.GenesisConfig{
		Chain: params.TestChainConfig,
	},
	MetricsCfg: conf.MetricsConfig{
		Enable:      false,
		HTTP:        "127.0.0.1",
		Port:        6060,
		LogInterval: 10,
	},
	SimulatorCfg: conf.SimulatorConfig{
		Miners:     5,
		Rounds:     20,
		TinyBlocks: 2,
	},
}
