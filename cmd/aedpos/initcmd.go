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
	"path/filepath"
	"time"

	"github.com/amazechain/aedpos/conf"
	metricsexp "github.com/amazechain/aedpos/internal/metrics"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/amazechain/aedpos/params"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/rcrowley/go-metrics"
	"github.com/urfave/cli/v2"
)

var (
	initCommand = &cli.Command{
		Name:      "init",
		Usage:     "Write a default configuration file",
		ArgsUsage: "<configPath>",
		Action:    initConfig,
		Description: `
The init command writes the default configuration, including the chain config
and the simulator settings, so that it can be edited and passed back with
--config.`,
	}
)

func initConfig(ctx *cli.Context) error {
	path := ctx.Args().First()
	if err := applyChainName(); err != nil {
		return err
	}
	if err := conf.SaveConfigToFile(path, DefaultConfig); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if path == "" {
		path = "./aedpos.yaml"
	}
	fmt.Println("Wrote configuration to", path)
	return nil
}

func applyChainName() error {
	if chainName == "" {
		return nil
	}
	chain, err := params.ChainConfigByName(chainName)
	if err != nil {
		return err
	}
	DefaultConfig.GenesisCfg.Chain = chain
	return nil
}

// setup loads the configuration file, starts the logger and the metrics reporter.
func setup() error {
	if len(cfgFile) > 0 {
		if err := conf.LoadConfigFromFile(cfgFile, &DefaultConfig); err != nil {
			return err
		}
	}
	if err := applyChainName(); err != nil {
		return err
	}
	log.Init(DefaultConfig.NodeCfg, DefaultConfig.LoggerCfg)

	if DefaultConfig.MetricsCfg.Enable {
		interval := time.Duration(DefaultConfig.MetricsCfg.LogInterval) * time.Second
		if interval <= 0 {
			interval = 10 * time.Second
		}
		go metrics.Log(metrics.DefaultRegistry, interval, metricsLogger{})
		if DefaultConfig.MetricsCfg.Port > 0 {
			address := fmt.Sprintf("%s:%d", DefaultConfig.MetricsCfg.HTTP, DefaultConfig.MetricsCfg.Port)
			metricsexp.Setup(address, log.New("module", "metrics"))
		}
	}
	return nil
}

type metricsLogger struct{}

func (metricsLogger) Printf(format string, v ...interface{}) {
	log.Infof(format, v...)
}

// openDatabase opens the chain database of the data dir, or an in-memory one.
func openDatabase() (kv.RwDB, error) {
	if DefaultConfig.DatabaseCfg.IsMem {
		return rawdb.NewMemoryDatabase(filepath.Join(DefaultConfig.NodeCfg.DataDir, "tmp")), nil
	}
	return rawdb.OpenDatabase(filepath.Join(DefaultConfig.NodeCfg.DataDir, DefaultConfig.DatabaseCfg.DBPath))
}
