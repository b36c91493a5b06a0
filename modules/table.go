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

package modules

import (
	"sort"
	"strings"

	"github.com/ledgerwatch/erigon-lib/kv"
)

// StateInfo
const (
	// DatabaseInfo is used to store information about data layout.
	DatabaseInfo = "DbInfo"
	ChainConfig  = "ChainConfig"
)

// Consensus
const (
	Rounds         = "Round"          // round_number_u64 -> rlp(round)
	ConsensusState = "ConsensusState" // state key -> value, see the keys below

	FirstRoundNumberOfTerm = "FirstRoundNumberOfTerm" // term_number_u64 -> round_number_u64
	MinerList              = "MinerList"              // term_number_u64 -> rlp(pubkeys)
	TermSnapshot           = "TermSnapshot"           // term_number_u64 -> json(term summary)
	MinerReplacement       = "MinerReplacement"       // term_number_u64 -> json(replacements)

	Election = "Election" // pubkey -> json(candidate)
	Reward   = "Reward"   // term:<n> -> json(reward entry)
)

// ConsensusState keys
const (
	CurrentRoundNumberKey            = "CurrentRoundNumber"
	CurrentTermNumberKey             = "CurrentTermNumber"
	BlockchainStartTimestampKey      = "BlockchainStartTimestamp"
	LatestPubkeyToTinyBlocksCountKey = "LatestPubkeyToTinyBlocksCount"
	PreviousBlockInSevereStatusKey   = "IsPreviousBlockInSevereStatus"
)

var AEDPoSTables = []string{
	DatabaseInfo,
	ChainConfig,

	Rounds,
	ConsensusState,
	FirstRoundNumberOfTerm,
	MinerList,
	TermSnapshot,
	MinerReplacement,

	Election,
	Reward,
}

var AEDPoSTableCfg = kv.TableCfg{}

// AEDPoSInit registers every table of the consensus with the erigon table config.
func AEDPoSInit() {
	sort.SliceStable(AEDPoSTables, func(i, j int) bool {
		return strings.Compare(AEDPoSTables[i], AEDPoSTables[j]) < 0
	})
	for _, name := range AEDPoSTables {
		_, ok := AEDPoSTableCfg[name]
		if !ok {
			AEDPoSTableCfg[name] = kv.TableCfgItem{}
		}
	}
}
