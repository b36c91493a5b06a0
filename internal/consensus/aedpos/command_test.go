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
	"testing"

	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/stretchr/testify/require"
)

func TestMiningLimits(t *testing.T) {
	limits := newMiningLimits(4000, 8, 8)
	if limits.tinyBlockSlot != 500 {
		t.Fatalf("tiny block slot mismatch: have %d, want %d", limits.tinyBlockSlot, 500)
	}
	if limits.defaultBlock != 300 {
		t.Fatalf("default block limit mismatch: have %d, want %d", limits.defaultBlock, 300)
	}
	if limits.lastTinyBlock != 250 {
		t.Fatalf("last tiny block limit mismatch: have %d, want %d", limits.lastTinyBlock, 250)
	}
	if limits.lastBlockOfTerm != 2400 {
		t.Fatalf("last block of term limit mismatch: have %d, want %d", limits.lastBlockOfTerm, 2400)
	}
}

func TestCommandInFirstRound(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	ctx := context.Background()

	cmd, err := c.engine.GetConsensusCommand(ctx, c.genesis[0], testStart)
	require.NoError(t, err)
	require.Equal(t, consensus.UpdateValue, cmd.Behaviour)
	require.Equal(t, uint64(testStart), cmd.ArrangedMiningTime)
	require.Equal(t, uint64(testStart+testInterval), cmd.MiningDueTime)

	// the others wait for the first miner, or close the round without it
	cmd, err = c.engine.GetConsensusCommand(ctx, c.genesis[1], testStart)
	require.NoError(t, err)
	require.Equal(t, consensus.NextRound, cmd.Behaviour)

	c.produce(c.genesis[0], consensus.UpdateValue, testStart+100)
	cmd, err = c.engine.GetConsensusCommand(ctx, c.genesis[1], testStart+200)
	require.NoError(t, err)
	require.Equal(t, consensus.UpdateValue, cmd.Behaviour)
	require.Equal(t, uint64(testStart+100+testInterval), cmd.ArrangedMiningTime)

	cmd, err = c.engine.GetConsensusCommand(ctx, c.newMiner().Pubkey(), testStart)
	require.NoError(t, err)
	require.False(t, cmd.IsValid())
}

func TestTinyBlockBudget(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	c.mineRound()
	c.mineRound()

	current := c.current()
	var miner string
	for _, m := range current.OrderedMiners() {
		if m.Order > 1 && m.Pubkey != current.ExtraBlockProducerOfPreviousRound {
			miner = m.Pubkey
			break
		}
	}
	slot := current.Miner(miner).ExpectedMiningTime
	ctx := context.Background()

	cmd, err := c.engine.GetConsensusCommand(ctx, miner, slot)
	require.NoError(t, err)
	require.Equal(t, consensus.UpdateValue, cmd.Behaviour)
	require.Equal(t, slot, cmd.ArrangedMiningTime)
	c.produce(miner, consensus.UpdateValue, slot)

	now := slot
	for produced := 1; produced < 8; produced++ {
		cmd, err = c.engine.GetConsensusCommand(ctx, miner, now)
		require.NoError(t, err)
		require.Equal(t, consensus.TinyBlock, cmd.Behaviour, "block %d", produced+1)
		require.Equal(t, slot+testInterval, cmd.MiningDueTime)
		if produced == 7 {
			require.Equal(t, uint64(250), cmd.LimitMillisecondsOfMiningBlock, "last tiny block of the slot")
		} else {
			require.Equal(t, uint64(300), cmd.LimitMillisecondsOfMiningBlock)
		}
		now = cmd.ArrangedMiningTime
		c.produce(miner, consensus.TinyBlock, now)
	}
	require.Len(t, c.current().Miner(miner).ActualMiningTimes, 8)
	require.Equal(t, uint64(8), c.current().Miner(miner).ProducedTinyBlocks)

	// the budget is spent, the miner is pointed at the end of the round
	cmd, err = c.engine.GetConsensusCommand(ctx, miner, now+tinyBlockMinimumInterval)
	require.NoError(t, err)
	require.Equal(t, consensus.NextRound, cmd.Behaviour)
	if current.Miner(miner).IsExtraBlockProducer {
		require.Equal(t, current.ExtraBlockMiningTime(), cmd.ArrangedMiningTime)
	} else {
		require.GreaterOrEqual(t, cmd.ArrangedMiningTime, current.ExpectedEndTime())
	}
}

func TestTinyBlockAfterSlot(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	c.mineRound()
	current := c.current()
	m := current.MinerByOrder(2)
	c.produce(m.Pubkey, consensus.UpdateValue, m.ExpectedMiningTime+testInterval-10)

	// not even the minimum distance to the next tiny block fits into the slot
	cmd, err := c.engine.GetConsensusCommand(context.Background(), m.Pubkey, m.ExpectedMiningTime+testInterval-5)
	require.NoError(t, err)
	require.False(t, cmd.IsValid())
}

func TestTermLastsOneRound(t *testing.T) {
	config := testConfig()
	config.PeriodSeconds = 1
	c := newTestChain(t, 4, config)
	c.mineRound()
	ctx := context.Background()

	// the period is long over, yet the first round of a term is always closed normally
	for _, want := range []consensus.Behaviour{consensus.NextTerm, consensus.NextRound, consensus.NextTerm} {
		current := c.current()
		for _, m := range current.OrderedMiners() {
			c.produce(m.Pubkey, consensus.UpdateValue, m.ExpectedMiningTime)
		}
		ebp := current.ExtraBlockProducer()
		cmd, err := c.engine.GetConsensusCommand(ctx, ebp.Pubkey, current.ExtraBlockMiningTime())
		require.NoError(t, err)
		require.Equal(t, want, cmd.Behaviour, "round %d of term %d", current.RoundNumber, current.TermNumber)
		c.produce(ebp.Pubkey, want, current.ExtraBlockMiningTime())
	}
	require.Equal(t, uint64(3), c.current().TermNumber)
}

func TestSolitaryMinerStops(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.mineRound()
	lonely := c.genesis[0]
	others := c.genesis[1:]
	c.mineRound(others...)
	c.mineRound(others...)
	require.Equal(t, uint64(4), c.current().RoundNumber)

	ctx := context.Background()
	now := c.current().RoundStartTime()
	cmd, err := c.engine.GetConsensusCommand(ctx, lonely, now)
	require.NoError(t, err)
	require.False(t, cmd.IsValid())
	require.Equal(t, consensus.Nothing, cmd.Behaviour)

	cmd, err = c.engine.GetConsensusCommand(ctx, others[0], now)
	require.NoError(t, err)
	require.True(t, cmd.IsValid())
}

func TestAPI(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.mineRound()
	ctx := context.Background()
	api := c.engine.API()

	number, err := api.GetCurrentRoundNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), number)

	miners, err := api.GetCurrentMinerList(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, c.genesis, miners)

	ok, err := api.IsCurrentMiner(ctx, c.genesis[1])
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = api.IsCurrentMiner(ctx, c.newMiner().Pubkey())
	require.NoError(t, err)
	require.False(t, ok)

	current := c.current()
	m := current.MinerByOrder(2)
	at, ok, err := api.GetNextMiningTime(ctx, m.Pubkey, current.RoundStartTime())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.ExpectedMiningTime, at)

	status, maximum, err := api.GetCurrentMiningStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, MiningStatusNormal, status)
	require.Equal(t, uint64(8), maximum)

	_, err = api.GetRoundInformation(ctx, 9)
	require.ErrorIs(t, err, ErrUnknownRound)
}
