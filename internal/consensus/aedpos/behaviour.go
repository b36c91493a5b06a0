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
	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
)

// behaviourProvider decides what a miner should do next given the current round.
type behaviourProvider struct {
	current            *round.Round
	pubkey             string
	now                uint64
	maximumBlocksCount uint64

	isMainChain              bool
	isFirstRoundOfTerm       bool
	blockchainStartTimestamp uint64
	periodSeconds            uint64
}

func (p *behaviourProvider) behaviour() consensus.Behaviour {
	miner := p.current.Miner(p.pubkey)
	if miner == nil {
		return consensus.Nothing
	}
	isTimeSlotPassed := p.current.IsTimeSlotPassed(p.pubkey, p.now)
	produced := uint64(len(miner.ActualMiningTimes))

	if miner.OutValue.IsEmpty() {
		if b := p.handleMinerInNewRound(miner, isTimeSlotPassed); b != consensus.Nothing {
			return b
		}
	} else if !isTimeSlotPassed {
		if produced < p.maximumBlocksCount {
			return consensus.TinyBlock
		}
		// the producer of the previous extra block holds two slots in this round
		if p.current.ExtraBlockProducerOfPreviousRound == p.pubkey && !p.current.IsMinerListJustChanged &&
			produced < p.maximumBlocksCount+p.blocksBeforeRoundStart(miner) {
			return consensus.TinyBlock
		}
	}
	return p.terminateBehaviour()
}

func (p *behaviourProvider) handleMinerInNewRound(miner *round.MinerInRound, isTimeSlotPassed bool) consensus.Behaviour {
	// the configured times of round one are unreliable, wait for the first miner
	if p.current.RoundNumber == 1 && miner.Order != 1 {
		if first := p.current.FirstMiner(); first != nil && first.OutValue.IsEmpty() {
			return consensus.NextRound
		}
	}
	if p.current.ExtraBlockProducerOfPreviousRound == p.pubkey && p.now < p.current.RoundStartTime() &&
		uint64(len(miner.ActualMiningTimes)) < p.maximumBlocksCount {
		return consensus.TinyBlock
	}
	if !isTimeSlotPassed {
		return consensus.UpdateValue
	}
	return consensus.Nothing
}

func (p *behaviourProvider) blocksBeforeRoundStart(miner *round.MinerInRound) uint64 {
	start := p.current.RoundStartTime()
	var count uint64
	for _, t := range miner.ActualMiningTimes {
		if t <= start {
			count++
		}
	}
	return count
}

// terminateBehaviour picks between closing the round and closing the term. Side
// chains never change term and every term lasts at least one full round.
func (p *behaviourProvider) terminateBehaviour() consensus.Behaviour {
	if !p.isMainChain || p.isFirstRoundOfTerm || p.current.Len() == 1 {
		return consensus.NextRound
	}
	if p.current.NeedToChangeTerm(p.blockchainStartTimestamp, p.current.TermNumber, p.periodSeconds) {
		return consensus.NextTerm
	}
	return consensus.NextRound
}
