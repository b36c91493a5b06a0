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
	"errors"
	"fmt"
)

// AEDPoSConfig are the consensus parameters of an AEDPoS chain. Durations are in
// milliseconds unless the name says otherwise.
type AEDPoSConfig struct {
	MiningInterval         uint64 `json:"miningInterval" yaml:"miningInterval"`
	PeriodSeconds          uint64 `json:"periodSeconds" yaml:"periodSeconds"`
	IsMainChain            bool   `json:"isMainChain" yaml:"isMainChain"`
	IsSecretSharingEnabled bool   `json:"isSecretSharingEnabled" yaml:"isSecretSharingEnabled"`

	MaximumTinyBlocksCount        uint64 `json:"maximumTinyBlocksCount" yaml:"maximumTinyBlocksCount"`
	TolerableMissedTimeSlotsCount uint64 `json:"tolerableMissedTimeSlotsCount" yaml:"tolerableMissedTimeSlotsCount"`
	// ImpliedHeightLagTolerance bounds how far below the current height an implied
	// irreversible height may be. Zero means miners count times MaximumTinyBlocksCount.
	ImpliedHeightLagTolerance uint64 `json:"impliedHeightLagTolerance" yaml:"impliedHeightLagTolerance"`

	KeepRounds     uint64 `json:"keepRounds" yaml:"keepRounds"`
	InmemoryRounds int    `json:"inmemoryRounds" yaml:"inmemoryRounds"`

	SupposedMinersCount   int    `json:"supposedMinersCount" yaml:"supposedMinersCount"`
	MaximumMinersCount    int    `json:"maximumMinersCount" yaml:"maximumMinersCount"`
	MinerIncreaseInterval uint64 `json:"minerIncreaseInterval" yaml:"minerIncreaseInterval"` // seconds
}

// DefaultAEDPoSConfig is the configuration of the main chain.
var DefaultAEDPoSConfig = AEDPoSConfig{
	MiningInterval:                4000,
	PeriodSeconds:                 604800,
	IsMainChain:                   true,
	IsSecretSharingEnabled:        true,
	MaximumTinyBlocksCount:        8,
	TolerableMissedTimeSlotsCount: 4320,
	KeepRounds:                    40960,
	InmemoryRounds:                128,
	SupposedMinersCount:           17,
	MaximumMinersCount:            100,
	MinerIncreaseInterval:         31536000,
}

// WithDefaults returns c with every unset field taken from DefaultAEDPoSConfig.
func (c AEDPoSConfig) WithDefaults() AEDPoSConfig {
	d := DefaultAEDPoSConfig
	if c.MiningInterval == 0 {
		c.MiningInterval = d.MiningInterval
	}
	if c.PeriodSeconds == 0 {
		c.PeriodSeconds = d.PeriodSeconds
	}
	if c.MaximumTinyBlocksCount == 0 {
		c.MaximumTinyBlocksCount = d.MaximumTinyBlocksCount
	}
	if c.TolerableMissedTimeSlotsCount == 0 {
		c.TolerableMissedTimeSlotsCount = d.TolerableMissedTimeSlotsCount
	}
	if c.KeepRounds == 0 {
		c.KeepRounds = d.KeepRounds
	}
	if c.InmemoryRounds <= 0 {
		c.InmemoryRounds = d.InmemoryRounds
	}
	if c.SupposedMinersCount <= 0 {
		c.SupposedMinersCount = d.SupposedMinersCount
	}
	if c.MaximumMinersCount <= 0 {
		c.MaximumMinersCount = d.MaximumMinersCount
	}
	if c.MinerIncreaseInterval == 0 {
		c.MinerIncreaseInterval = d.MinerIncreaseInterval
	}
	return c
}

// MinersCount is the size of the miner list elected for a chain that has been running
// for blockchainAge seconds. It grows by two every MinerIncreaseInterval.
func (c *AEDPoSConfig) MinersCount(blockchainAge uint64) int {
	count := c.SupposedMinersCount
	if c.MinerIncreaseInterval > 0 {
		count += 2 * int(blockchainAge/c.MinerIncreaseInterval)
	}
	if c.MaximumMinersCount > 0 && count > c.MaximumMinersCount {
		count = c.MaximumMinersCount
	}
	return count
}

func (c *AEDPoSConfig) Validate() error {
	if c.MiningInterval < 8 {
		return fmt.Errorf("mining interval %dms is too short", c.MiningInterval)
	}
	if c.MaximumTinyBlocksCount == 0 {
		return errors.New("maximum tiny blocks count must be positive")
	}
	if c.KeepRounds < 3 {
		return fmt.Errorf("keep rounds %d must hold at least three rounds", c.KeepRounds)
	}
	if c.MaximumMinersCount < c.SupposedMinersCount {
		return fmt.Errorf("maximum miners count %d below supposed count %d", c.MaximumMinersCount, c.SupposedMinersCount)
	}
	return nil
}

func (c *AEDPoSConfig) String() string {
	return fmt.Sprintf("{interval: %dms, period: %ds, main: %v, secret sharing: %v, tiny: %d}",
		c.MiningInterval, c.PeriodSeconds, c.IsMainChain, c.IsSecretSharingEnabled, c.MaximumTinyBlocksCount)
}
