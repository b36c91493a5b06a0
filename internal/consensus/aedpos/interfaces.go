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

package aedpos

// ElectionRegistry is the candidate registry the consensus consults for bans and
// replacements. It never calls back into the engine.
type ElectionRegistry interface {
	// IsBanned reports whether pubkey has been marked evil.
	IsBanned(pubkey string) bool

	// GetMinerReplacementInformation returns the banned miners among currentMiners
	// and, index by index, the candidates that replace them. Both lists have the
	// same length.
	GetMinerReplacementInformation(currentMiners []string) (evilMiners, alternatives []string)

	// MarkEvil bans pubkey.
	MarkEvil(pubkey string)

	// RecordMinerReplacement is called whenever a miner leaves the miner list in
	// the middle of a term.
	RecordMinerReplacement(oldPubkey, newPubkey string, term uint64, isEvilReplacement bool)

	// GetVictories returns the miners of the next term, nil to keep currentMiners.
	GetVictories(currentMiners []string) []string

	// SetMinerList registers the miners of a new term.
	SetMinerList(term uint64, miners []string)
}

// MinerReplacement is a miner swapped out during a term.
type MinerReplacement struct {
	OldPubkey string
	NewPubkey string
	IsEvil    bool
}

// TermSummary is what the treasury learns about a finished term.
type TermSummary struct {
	TermNumber     uint64
	EndRoundNumber uint64
	Miners         []string
	ProducedBlocks map[string]uint64
	Replacements   []MinerReplacement
}

// Treasury records reward weights at the end of every term.
type Treasury interface {
	RecordTermSummary(summary *TermSummary) error
}
