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
	"context"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
)

// slot limits derived from the mining interval, in milliseconds.
type miningLimits struct {
	interval           uint64
	tinyBlockSlot      uint64
	defaultBlock       uint64
	lastTinyBlock      uint64
	lastBlockOfTerm    uint64
	maximumBlocksCount uint64
}

func newMiningLimits(interval, maximumTinyBlocks, maximumBlocks uint64) miningLimits {
	slot := interval / maximumTinyBlocks
	return miningLimits{
		interval:           interval,
		tinyBlockSlot:      slot,
		defaultBlock:       slot * 3 / 5,
		lastTinyBlock:      slot / 2,
		lastBlockOfTerm:    interval * 3 / 5,
		maximumBlocksCount: maximumBlocks,
	}
}

// GetConsensusCommand tells pubkey what to produce next and when. Miners that must
// not produce get an invalid command rather than an error.
func (e *AEDPoS) GetConsensusCommand(ctx context.Context, pubkey string, now uint64) (*consensus.Command, error) {
	var cmd *consensus.Command
	err := e.view(ctx, func(r StateReader) error {
		current, err := e.currentRound(r)
		if err != nil {
			return err
		}
		cmd, err = e.consensusCommand(r, current, pubkey, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func invalidCommand() *consensus.Command {
	c := consensus.InvalidCommand
	return &c
}

func (e *AEDPoS) consensusCommand(r StateReader, current *round.Round, pubkey string, now uint64) (*consensus.Command, error) {
	if !current.IsInMinerList(pubkey) || e.election.IsBanned(pubkey) {
		return invalidCommand(), nil
	}
	solitary, err := e.isSolitaryMiner(r, current, pubkey)
	if err != nil {
		return nil, err
	}
	if solitary {
		e.log.Warn("Only this miner mined in the last two rounds, stop mining", "pubkey", pubkey, "round", current.RoundNumber)
		return invalidCommand(), nil
	}

	maximum, _, err := e.maximumBlocksCount(r, current)
	if err != nil {
		return nil, err
	}
	start, err := r.BlockchainStartTimestamp()
	if err != nil {
		return nil, err
	}
	first, err := isFirstRoundOfCurrentTerm(r, current)
	if err != nil {
		return nil, err
	}
	provider := &behaviourProvider{
		current:                  current,
		pubkey:                   pubkey,
		now:                      now,
		maximumBlocksCount:       maximum,
		isMainChain:              e.config.IsMainChain,
		isFirstRoundOfTerm:       first,
		blockchainStartTimestamp: start,
		periodSeconds:            e.config.PeriodSeconds,
	}
	behaviour := provider.behaviour()
	limits := newMiningLimits(current.MiningInterval(), e.config.MaximumTinyBlocksCount, maximum)

	var cmd *consensus.Command
	switch behaviour {
	case consensus.UpdateValue:
		cmd = updateValueCommand(current, pubkey, now, limits)
	case consensus.TinyBlock:
		cmd = tinyBlockCommand(current, pubkey, now, limits)
	case consensus.NextRound, consensus.NextTerm:
		cmd = terminateRoundCommand(current, pubkey, now, behaviour, limits)
	default:
		cmd = invalidCommand()
	}
	e.log.Trace("Consensus command", "pubkey", pubkey, "round", current.RoundNumber, "command", cmd)
	return cmd, nil
}

// isSolitaryMiner reports whether pubkey has been the only producer for the last two
// rounds, which means it is most likely forked off the other miners.
func (e *AEDPoS) isSolitaryMiner(r StateReader, current *round.Round, pubkey string) (bool, error) {
	if current.RoundNumber <= 3 || current.Len() <= 2 {
		return false, nil
	}
	previous, err := e.getRound(r, current.RoundNumber-1)
	if err != nil {
		return false, err
	}
	beforePrevious, err := e.getRound(r, current.RoundNumber-2)
	if err != nil {
		return false, err
	}
	if previous.IsEmpty() || beforePrevious.IsEmpty() {
		return false, nil
	}
	for _, rd := range []*round.Round{previous, beforePrevious} {
		mined := minedPubkeys(rd)
		if mined.Cardinality() != 1 || !mined.Contains(pubkey) {
			return false, nil
		}
	}
	return true, nil
}

func updateValueCommand(current *round.Round, pubkey string, now uint64, limits miningLimits) *consensus.Command {
	m := current.Miner(pubkey)
	arranged, ok := current.ArrangeNormalMiningTime(pubkey, now)
	if !ok {
		return invalidCommand()
	}
	// round one follows the actual start of its first miner
	if current.RoundNumber == 1 {
		if first := current.FirstMiner(); first != nil && len(first.ActualMiningTimes) > 0 && first.Pubkey != pubkey {
			arranged = first.ActualMiningTimes[0] + uint64(m.Order-1)*limits.interval
		}
	}
	if arranged < now {
		arranged = now
	}
	return &consensus.Command{
		Behaviour:                      consensus.UpdateValue,
		ArrangedMiningTime:             arranged,
		MiningDueTime:                  arranged + limits.interval,
		LimitMillisecondsOfMiningBlock: limits.defaultBlock,
	}
}

func tinyBlockCommand(current *round.Round, pubkey string, now uint64, limits miningLimits) *consensus.Command {
	m := current.Miner(pubkey)
	roundStart := current.RoundStartTime()

	var slotStart uint64
	switch {
	case now < roundStart:
		slotStart = roundStart - limits.interval
	case current.RoundNumber == 1 && len(m.ActualMiningTimes) > 0:
		slotStart = m.ActualMiningTimes[0]
	default:
		slotStart = m.ExpectedMiningTime
	}
	slotEnd := slotStart + limits.interval
	arranged := now + tinyBlockMinimumInterval
	if latest := m.LatestActualMiningTime(); latest+tinyBlockMinimumInterval > arranged {
		arranged = latest + tinyBlockMinimumInterval
	}
	if arranged > slotEnd {
		return invalidCommand()
	}
	limit := limits.defaultBlock
	if isLastTinyBlockOfSlot(m, now, roundStart, limits.maximumBlocksCount) {
		limit = limits.lastTinyBlock
	}
	return &consensus.Command{
		Behaviour:                      consensus.TinyBlock,
		ArrangedMiningTime:             arranged,
		MiningDueTime:                  slotEnd,
		LimitMillisecondsOfMiningBlock: limit,
	}
}

// isLastTinyBlockOfSlot compares the count the next block brings the slot to, not the
// count already produced.
func isLastTinyBlockOfSlot(m *round.MinerInRound, now, roundStart, maximum uint64) bool {
	produced := uint64(len(m.ActualMiningTimes))
	if now <= roundStart {
		return produced+1 == maximum
	}
	var beforeRoundStart uint64
	for _, t := range m.ActualMiningTimes {
		if t <= roundStart {
			beforeRoundStart++
		}
	}
	return produced+1 == beforeRoundStart+maximum
}

func terminateRoundCommand(current *round.Round, pubkey string, now uint64, behaviour consensus.Behaviour, limits miningLimits) *consensus.Command {
	arranged, err := current.ArrangeAbnormalMiningTime(pubkey, now, false)
	if err != nil {
		return invalidCommand()
	}
	limit := limits.defaultBlock
	if behaviour == consensus.NextTerm {
		limit = limits.lastBlockOfTerm
	}
	return &consensus.Command{
		Behaviour:                      behaviour,
		ArrangedMiningTime:             arranged,
		MiningDueTime:                  arranged + limits.interval,
		LimitMillisecondsOfMiningBlock: limit,
	}
}
