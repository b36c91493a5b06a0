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

import (
	"fmt"
	"slices"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
	mapset "github.com/deckarep/golang-set/v2"
)

// replacement pairs a banned miner with the candidate taking its slot.
type replacement struct {
	evil        string
	alternative string
}

// minerReplacements asks the registry which miners of current must leave and keeps
// the pairs that can be applied: the evil miner is in the round, the alternative is
// not, and nobody is used twice.
func (e *AEDPoS) minerReplacements(current *round.Round) []replacement {
	if !e.config.IsMainChain {
		return nil
	}
	evil, alternatives := e.election.GetMinerReplacementInformation(current.Pubkeys())
	if len(evil) != len(alternatives) {
		e.log.Warn("Replacement information is unbalanced", "evil", len(evil), "alternatives", len(alternatives))
	}
	used := mapset.NewThreadUnsafeSet[string]()
	var pairs []replacement
	for i := 0; i < len(evil) && i < len(alternatives); i++ {
		old, alt := evil[i], alternatives[i]
		if alt == "" || !current.IsInMinerList(old) || current.IsInMinerList(alt) {
			continue
		}
		if used.Contains(old) || used.Contains(alt) {
			continue
		}
		used.Add(old)
		used.Add(alt)
		pairs = append(pairs, replacement{evil: old, alternative: alt})
	}
	return pairs
}

// applyReplacements moves the slot of every evil miner to its alternative.
func applyReplacements(next *round.Round, pairs []replacement) error {
	for _, p := range pairs {
		old := next.Miner(p.evil)
		if old == nil {
			return fmt.Errorf("%w: %s not in round %d", round.ErrMinerNotFound, p.evil, next.RoundNumber)
		}
		alt := &round.MinerInRound{
			Pubkey:               p.alternative,
			Order:                old.Order,
			ExpectedMiningTime:   old.ExpectedMiningTime,
			IsExtraBlockProducer: old.IsExtraBlockProducer,
		}
		next.RemoveMiner(p.evil)
		if err := next.AddMiner(alt); err != nil {
			return err
		}
	}
	if len(pairs) > 0 {
		next.IsMinerListJustChanged = true
	}
	return nil
}

// generateNextRound derives the round sender opens with an extra block at blockTime.
func (e *AEDPoS) generateNextRound(r StateReader, current *round.Round, sender string, blockTime uint64) (*round.Round, []replacement, error) {
	start, err := r.BlockchainStartTimestamp()
	if err != nil {
		return nil, nil, err
	}
	next := current.GenerateNextRoundInformation(blockTime, start, false)
	pairs := e.minerReplacements(current)
	if err := applyReplacements(next, pairs); err != nil {
		return nil, nil, err
	}
	next.ExtraBlockProducerOfPreviousRound = sender
	if m := next.Miner(sender); m != nil {
		m.ProducedBlocks++
		m.ActualMiningTimes = append(m.ActualMiningTimes, blockTime)
	}
	if next.IsEmpty() {
		return nil, nil, ErrEmptyMinerList
	}
	return next, pairs, nil
}

// nextTermMiners returns the miner list of the term after current, at most as many
// victories as a chain of blockchainAge seconds elects.
func (e *AEDPoS) nextTermMiners(current *round.Round, blockchainAge uint64) []string {
	victories := e.election.GetVictories(current.Pubkeys())
	if len(victories) == 0 {
		return current.Pubkeys()
	}
	if limit := e.config.MinersCount(blockchainAge); limit > 0 && len(victories) > limit {
		victories = victories[:limit]
	}
	return victories
}

// generateNextTerm builds the first round of the next term. Counters start over.
func (e *AEDPoS) generateNextTerm(r StateReader, current *round.Round, sender string, blockTime uint64) (*round.Round, error) {
	start, err := r.BlockchainStartTimestamp()
	if err != nil {
		return nil, err
	}
	var age uint64
	if blockTime > start {
		age = (blockTime - start) / 1000
	}
	miners := e.nextTermMiners(current, age)
	if len(miners) == 0 {
		return nil, ErrEmptyMinerList
	}
	next := round.GenerateFirstRoundOfNewTerm(miners, current.MiningInterval(), blockTime, current.RoundNumber, current.TermNumber)
	if next.IsEmpty() {
		return nil, ErrEmptyMinerList
	}
	next.BlockchainAge = age
	next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber
	next.ExtraBlockProducerOfPreviousRound = sender
	if m := next.Miner(sender); m != nil {
		m.ProducedBlocks = 1
		m.ActualMiningTimes = append(m.ActualMiningTimes, blockTime)
	}
	return next, nil
}

// expectedNextRound regenerates the round a transition block must carry.
func (e *AEDPoS) expectedNextRound(r StateReader, current *round.Round, behaviour consensus.Behaviour, sender string, blockTime uint64) (*round.Round, error) {
	if behaviour == consensus.NextTerm {
		return e.generateNextTerm(r, current, sender, blockTime)
	}
	next, _, err := e.generateNextRound(r, current, sender, blockTime)
	return next, err
}

// compareTransition checks every field of provided that a transition persists against
// the round regenerated from state.
func compareTransition(expected, provided *round.Round) error {
	if expected.Hash(false) != provided.Hash(false) {
		return fmt.Errorf("%w: round %d", ErrInvalidOrder, provided.RoundNumber)
	}
	if provided.ConfirmedIrreversibleBlockHeight != expected.ConfirmedIrreversibleBlockHeight ||
		provided.ConfirmedIrreversibleBlockRoundNumber != expected.ConfirmedIrreversibleBlockRoundNumber {
		return fmt.Errorf("%w: confirmed %d@%d, expected %d@%d", ErrInvalidLibInformation,
			provided.ConfirmedIrreversibleBlockHeight, provided.ConfirmedIrreversibleBlockRoundNumber,
			expected.ConfirmedIrreversibleBlockHeight, expected.ConfirmedIrreversibleBlockRoundNumber)
	}
	if provided.ExtraBlockProducerOfPreviousRound != expected.ExtraBlockProducerOfPreviousRound {
		return fmt.Errorf("%w: extra block producer of previous round %s", ErrInvalidHeaderInformation, provided.ExtraBlockProducerOfPreviousRound)
	}
	if provided.IsMinerListJustChanged != expected.IsMinerListJustChanged {
		return fmt.Errorf("%w: miner list change flag", ErrInvalidHeaderInformation)
	}
	for _, m := range expected.Miners {
		p := provided.Miner(m.Pubkey)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrInvalidMinerList, m.Pubkey)
		}
		if !slices.Equal(m.ActualMiningTimes, p.ActualMiningTimes) {
			return fmt.Errorf("%w: actual mining times of %s", ErrInvalidHeaderInformation, m.Pubkey)
		}
	}
	return nil
}
