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

package conf

import (
	"path/filepath"
	"testing"

	"github.com/amazechain/aedpos/params"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "aedpos.yaml")
	cfg := Config{
		NodeCfg:   NodeConfig{DataDir: "/tmp/aedpos", Miner: true},
		LoggerCfg: LoggerConfig{LogFile: "aedpos.log", Level: "debug", MaxSize: 10},
		GenesisCfg: GenesisConfig{
			Chain:     params.TestChainConfig,
			Miners:    []string{"aa", "bb"},
			Timestamp: 1_000_000,
		},
		SimulatorCfg: SimulatorConfig{Miners: 5, Rounds: 10, Offline: []int{3}},
	}
	require.NoError(t, SaveConfigToFile(file, cfg))

	var loaded Config
	require.NoError(t, LoadConfigFromFile(file, &loaded))
	require.Equal(t, cfg.NodeCfg, loaded.NodeCfg)
	require.Equal(t, cfg.LoggerCfg, loaded.LoggerCfg)
	require.Equal(t, cfg.GenesisCfg.Miners, loaded.GenesisCfg.Miners)
	require.Equal(t, *cfg.GenesisCfg.Chain.AEDPoS, *loaded.GenesisCfg.Chain.AEDPoS)
	require.Equal(t, cfg.SimulatorCfg, loaded.SimulatorCfg)

	require.Error(t, LoadConfigFromFile("", &loaded))
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			GenesisCfg:   GenesisConfig{Chain: params.TestChainConfig},
			SimulatorCfg: SimulatorConfig{Miners: 4, Rounds: 10, Offline: []int{1}},
		}
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.GenesisCfg.Chain = nil
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.SimulatorCfg.Offline = []int{4}
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.SimulatorCfg.Miners = 1
	cfg.SimulatorCfg.Offline = []int{0}
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.LoggerCfg.Level = "loud"
	require.Error(t, cfg.Validate())
	cfg.LoggerCfg.Level = "warn"
	require.NoError(t, cfg.Validate())

	chain := *params.TestChainConfig
	consensus := *chain.AEDPoS
	consensus.MiningInterval = 4
	chain.AEDPoS = &consensus
	cfg = valid()
	cfg.GenesisCfg.Chain = &chain
	require.Error(t, cfg.Validate())
}
