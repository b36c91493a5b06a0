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

package round

import (
	"testing"

	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/utils"
	"github.com/stretchr/testify/require"
)

func TestGenerateFirstRoundOfNewTerm(t *testing.T) {
	pubkeys := []string{testPubkey(0x10), testPubkey(0x30), testPubkey(0x20), testPubkey(0x30)}
	r := GenerateFirstRoundOfNewTerm(pubkeys, testInterval, 1_000_000, 7, 2)

	require.Equal(t, uint64(8), r.RoundNumber)
	require.Equal(t, uint64(3), r.TermNumber)
	require.True(t, r.IsMinerListJustChanged)
	require.Equal(t, 3, r.Len(), "duplicates are dropped")
	require.NoError(t, r.Validate())

	require.Equal(t, []string{testPubkey(0x30), testPubkey(0x20), testPubkey(0x10)}, r.Pubkeys())
	require.Equal(t, testPubkey(0x30), r.ExtraBlockProducer().Pubkey)
	for i, m := range r.OrderedMiners() {
		require.Equal(t, uint64(1_000_000+testInterval*(i+1)), m.ExpectedMiningTime)
	}
	require.NoError(t, r.CheckRoundTimeSlots())
}

func TestGenerateNextRoundFollowsFinalOrders(t *testing.T) {
	r, pubkeys := newTestRound(1_000_000)
	supposed := []uint32{3, 3, 5, 1, 5}
	for i, pubkey := range pubkeys {
		r.ApplyNormalConsensusData(pubkey, types.EmptyHash, utils.HashFromString(pubkey), signatureFor(supposed[i]))
		r.Miner(pubkey).ProducedBlocks = 1
	}

	blockTime := r.ExtraBlockMiningTime()
	next := r.GenerateNextRoundInformation(blockTime, 0, false)
	require.NoError(t, next.Validate())
	require.Equal(t, r.RoundNumber+1, next.RoundNumber)
	require.Equal(t, r.TermNumber, next.TermNumber)
	require.False(t, next.IsMinerListJustChanged)

	wantOrders := []uint32{3, 4, 5, 1, 2}
	for i, pubkey := range pubkeys {
		m := next.Miner(pubkey)
		require.Equal(t, wantOrders[i], m.Order, "miner %d", i)
		require.Equal(t, blockTime+testInterval*uint64(m.Order), m.ExpectedMiningTime)
		require.Equal(t, uint64(1), m.ProducedBlocks)
		require.Zero(t, m.MissedTimeSlots)
		require.True(t, m.OutValue.IsEmpty())
	}

	// the first miner by order mined with supposed order 3
	require.Equal(t, pubkeys[0], next.ExtraBlockProducer().Pubkey)
	require.Equal(t, uint64(testInterval), next.MiningInterval())
}

func TestGenerateNextRoundChargesMissedSlots(t *testing.T) {
	r, pubkeys := newTestRound(1_000_000)
	r.Miner(pubkeys[4]).MissedTimeSlots = 10
	r.ApplyNormalConsensusData(pubkeys[1], types.EmptyHash, utils.HashFromString("b"), signatureFor(1))
	r.ApplyNormalConsensusData(pubkeys[3], types.EmptyHash, utils.HashFromString("d"), signatureFor(2))

	next := r.GenerateNextRoundInformation(r.ExtraBlockMiningTime(), 0, false)
	require.NoError(t, next.Validate())

	require.Equal(t, uint32(1), next.Miner(pubkeys[1]).Order)
	require.Equal(t, uint32(2), next.Miner(pubkeys[3]).Order)
	// remaining orders go to the others in their current order
	require.Equal(t, uint32(3), next.Miner(pubkeys[0]).Order)
	require.Equal(t, uint32(4), next.Miner(pubkeys[2]).Order)
	require.Equal(t, uint32(5), next.Miner(pubkeys[4]).Order)

	require.Zero(t, next.Miner(pubkeys[1]).MissedTimeSlots)
	require.Equal(t, uint64(1), next.Miner(pubkeys[0]).MissedTimeSlots)
	require.Equal(t, uint64(11), next.Miner(pubkeys[4]).MissedTimeSlots)
}

func TestGenerateNextRoundBlockchainAge(t *testing.T) {
	r, _ := newTestRound(1_000_000)
	next := r.GenerateNextRoundInformation(1_100_000, 1_000_000, false)
	require.Equal(t, uint64(100), next.BlockchainAge)

	r.RoundNumber = 1
	next = r.GenerateNextRoundInformation(1_100_000, 1_000_000, false)
	require.Equal(t, uint64(1), next.BlockchainAge)
}

func TestBreakContinuousMining(t *testing.T) {
	r, pubkeys := newTestRound(1_000_000)
	ebp := r.ExtraBlockProducer().Pubkey
	require.Equal(t, pubkeys[0], ebp)

	// the extra block producer of this round would open the next round
	r.ApplyNormalConsensusData(pubkeys[0], types.EmptyHash, utils.HashFromString("a"), signatureFor(3))
	r.Miner(pubkeys[0]).FinalOrderOfNextRound = 1

	next := r.GenerateNextRoundInformation(r.ExtraBlockMiningTime(), 0, false)
	require.NoError(t, next.Validate())
	require.Equal(t, uint32(2), next.Miner(ebp).Order)
	require.NotEqual(t, ebp, next.FirstMiner().Pubkey)
	require.NoError(t, next.CheckRoundTimeSlots())
	require.Less(t, next.FirstMiner().ExpectedMiningTime, next.Miner(ebp).ExpectedMiningTime)
}

func TestBreakContinuousMiningAtTheEnd(t *testing.T) {
	r, pubkeys := newTestRound(1_000_000)
	// pubkeys[2] mines first and designates order 5 as next extra block producer
	r.ApplyNormalConsensusData(pubkeys[2], types.EmptyHash, utils.HashFromString("c"), signatureFor(5))

	next := r.GenerateNextRoundInformation(r.ExtraBlockMiningTime(), 0, false)
	require.NoError(t, next.Validate())
	last := next.MinerByOrder(uint32(next.Len()))
	require.False(t, last.IsExtraBlockProducer)
	require.Equal(t, pubkeys[2], next.MinerByOrder(4).Pubkey)
	require.True(t, next.MinerByOrder(4).IsExtraBlockProducer)
}

func TestGenerateFirstRound(t *testing.T) {
	pubkeys := []string{testPubkey(0x10), testPubkey(0x30), "", testPubkey(0x10)}
	r := GenerateFirstRound(pubkeys, testInterval, 2_000_000)

	require.Equal(t, uint64(1), r.RoundNumber)
	require.Equal(t, uint64(1), r.TermNumber)
	require.NoError(t, r.Validate())
	require.Equal(t, []string{testPubkey(0x10), testPubkey(0x30)}, r.Pubkeys())
	require.Equal(t, uint64(2_000_000), r.RoundStartTime())
	require.Equal(t, testPubkey(0x10), r.ExtraBlockProducer().Pubkey)
}
