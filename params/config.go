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

package params

import (
	"fmt"

	"github.com/amazechain/aedpos/params/networkname"
)

// ChainConfig is the core config which determines the blockchain settings.
type ChainConfig struct {
	ChainID   uint64        `json:"chainId" yaml:"chainId"`
	ChainName string        `json:"chainName" yaml:"chainName"`
	AEDPoS    *AEDPoSConfig `json:"aedpos" yaml:"aedpos"`
}

var (
	// MainChainConfig runs the full consensus with elections and treasury.
	MainChainConfig = &ChainConfig{
		ChainID:   9992731,
		ChainName: networkname.MainChainName,
		AEDPoS:    withMainChain(true),
	}

	// SideChainConfig keeps its miner list for good and never changes term.
	SideChainConfig = &ChainConfig{
		ChainID:   2816001,
		ChainName: networkname.SideChainName,
		AEDPoS:    withMainChain(false),
	}

	// TestChainConfig is a fast main chain used by tests and the simulator.
	TestChainConfig = &ChainConfig{
		ChainID:   1337,
		ChainName: networkname.DevChainName,
		AEDPoS: &AEDPoSConfig{
			MiningInterval:                4000,
			PeriodSeconds:                 60,
			IsMainChain:                   true,
			IsSecretSharingEnabled:        true,
			MaximumTinyBlocksCount:        8,
			TolerableMissedTimeSlotsCount: 4320,
			KeepRounds:                    64,
			InmemoryRounds:                16,
			SupposedMinersCount:           5,
			MaximumMinersCount:            17,
			MinerIncreaseInterval:         3600,
		},
	}
)

func withMainChain(main bool) *AEDPoSConfig {
	c := DefaultAEDPoSConfig
	c.IsMainChain = main
	return &c
}

// ChainConfigByName returns the predefined config of a network name.
func ChainConfigByName(name string) (*ChainConfig, error) {
	switch name {
	case networkname.MainChainName:
		return MainChainConfig, nil
	case networkname.SideChainName:
		return SideChainConfig, nil
	case networkname.DevChainName:
		return TestChainConfig, nil
	}
	return nil, fmt.Errorf("unknown chain %q, want one of %v", name, networkname.All)
}

func (c *ChainConfig) String() string {
	return fmt.Sprintf("{ChainID: %d, Name: %s, AEDPoS: %v}", c.ChainID, c.ChainName, c.AEDPoS)
}
