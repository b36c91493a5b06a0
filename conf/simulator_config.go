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

// SimulatorConfig drives the in-process network of the simulate command.
type SimulatorConfig struct {
	Miners int    `json:"miners" yaml:"miners"`
	Rounds uint64 `json:"rounds" yaml:"rounds"`
	// Offline lists miner indexes that never produce.
	Offline []int `json:"offline" yaml:"offline"`
	// TinyBlocks is the number of extra blocks a miner produces after its value.
	TinyBlocks int `json:"tiny_blocks" yaml:"tiny_blocks"`
}
