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
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Config struct {
	NodeCfg      NodeConfig      `json:"node" yaml:"node"`
	LoggerCfg    LoggerConfig    `json:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `json:"database" yaml:"database"`
	GenesisCfg   GenesisConfig   `json:"genesis" yaml:"genesis"`
	MetricsCfg   MetricsConfig   `json:"metrics" yaml:"metrics"`
	SimulatorCfg SimulatorConfig `json:"simulator" yaml:"simulator"`
}

// Validate checks the chain config with its defaults applied, the logger level and
// the simulator settings.
func (c *Config) Validate() error {
	if c.GenesisCfg.Chain == nil || c.GenesisCfg.Chain.AEDPoS == nil {
		return errors.New("missing chain config")
	}
	consensus := c.GenesisCfg.Chain.AEDPoS.WithDefaults()
	if err := consensus.Validate(); err != nil {
		return fmt.Errorf("chain %s: %w", c.GenesisCfg.Chain.ChainName, err)
	}
	if level := c.LoggerCfg.Level; level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	sim := c.SimulatorCfg
	if sim.Miners <= 0 {
		return fmt.Errorf("invalid simulator miners count %d", sim.Miners)
	}
	if sim.TinyBlocks < 0 {
		return fmt.Errorf("invalid simulator tiny blocks %d", sim.TinyBlocks)
	}
	for _, i := range sim.Offline {
		if i < 0 || i >= sim.Miners {
			return fmt.Errorf("offline miner %d out of range", i)
		}
	}
	if len(sim.Offline) >= sim.Miners {
		return errors.New("at least one simulated miner must stay online")
	}
	return nil
}

func SaveConfigToFile(file string, config Config) error {
	if len(file) == 0 {
		file = "./aedpos.yaml"
	}

	fd, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer fd.Close()
	return yaml.NewEncoder(fd).Encode(config)
}

func LoadConfigFromFile(file string, config *Config) error {
	if len(file) <= 0 {
		return fmt.Errorf("failed to load config from file, file is nil")
	}
	fd, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fd.Close()
	reader := bufio.NewReader(fd)
	return yaml.NewDecoder(reader).Decode(config)
}
