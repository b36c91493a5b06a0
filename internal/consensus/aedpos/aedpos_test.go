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

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/amazechain/aedpos/utils"
	"github.com/stretchr/testify/require"
)

func TestFirstRound(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	ctx := context.Background()

	current := c.current()
	require.Equal(t, uint64(1), current.RoundNumber)
	require.Equal(t, uint64(1), current.TermNumber)
	require.Equal(t, c.genesis, current.Pubkeys())
	require.Equal(t, c.genesis, c.registry.minerLists[1])

	miners, err := c.engine.API().GetMinerListByTerm(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, c.genesis, miners)

	err = c.engine.FirstRound(ctx, round.GenerateFirstRound(c.genesis, testInterval, testStart), testStart)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	engine, err := New(testConfig(), NewMemoryDatabase(), nil, nil)
	require.NoError(t, err)
	_, err = engine.API().GetCurrentRoundInformation(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestNormalRounds(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	found := make(chan IrreversibleBlockFound, 64)
	sub := c.engine.SubscribeIrreversibleBlockFound(found)
	defer sub.Unsubscribe()

	for i := 0; i < 3; i++ {
		c.mineRound()
	}
	current := c.current()
	require.Equal(t, uint64(4), current.RoundNumber)
	require.Equal(t, uint64(1), current.TermNumber)
	require.NoError(t, current.Validate())
	require.NoError(t, current.CheckRoundTimeSlots())

	second, third := c.round(2), c.round(3)
	for _, m := range third.Miners {
		// every miner revealed the in value it committed to in the round before
		require.False(t, m.PreviousInValue.IsEmpty(), "miner %s", m.Pubkey[:8])
		require.Equal(t, second.Miner(m.Pubkey).OutValue, utils.HashOf(m.PreviousInValue))
		require.Equal(t, second.CalculateSignature(m.PreviousInValue), m.Signature)
		require.Equal(t, round.SupposedOrder(m.Signature, third.Len()), m.SupposedOrderOfNextRound)
		require.NotEmpty(t, m.ActualMiningTimes)
	}

	ebp := third.ExtraBlockProducer().Pubkey
	require.Equal(t, ebp, current.ExtraBlockProducerOfPreviousRound)
	require.NotEqual(t, uint32(1), current.Miner(ebp).Order)
	require.Equal(t, third.ExtraBlockMiningTime()+testInterval, current.RoundStartTime())

	// heights 1..4 were implied in round one, the LIB is the second lowest
	require.Equal(t, uint64(2), second.ConfirmedIrreversibleBlockHeight)
	require.Equal(t, uint64(1), second.ConfirmedIrreversibleBlockRoundNumber)
	require.Greater(t, third.ConfirmedIrreversibleBlockHeight, second.ConfirmedIrreversibleBlockHeight)
	require.Equal(t, uint64(2), third.ConfirmedIrreversibleBlockRoundNumber)
	require.Equal(t, third.ConfirmedIrreversibleBlockHeight, current.ConfirmedIrreversibleBlockHeight)

	var last IrreversibleBlockFound
	for len(found) > 0 {
		ev := <-found
		require.Greater(t, ev.IrreversibleBlockHeight, last.IrreversibleBlockHeight)
		last = ev
	}
	require.Equal(t, third.ConfirmedIrreversibleBlockHeight, last.IrreversibleBlockHeight)
	require.Equal(t, uint64(3), last.RoundNumber)
}

func TestProducedBlocksCount(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	c.mineRound()
	c.mineRound()

	second := c.round(2)
	for _, m := range second.Miners {
		want := uint64(2) // one update per round
		if second.ExtraBlockProducerOfPreviousRound == m.Pubkey {
			want++
		}
		require.Equal(t, want, m.ProducedBlocks, "miner %s", m.Pubkey[:8])
	}
	// the block closing round two is counted in round three
	require.Equal(t, c.height-1, second.MinedBlocks())
}

func TestSecretSharingRevealsInValue(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	c.mineRound()

	// the miner loses the in value it committed in round one
	forgetful := c.genesis[2]
	cached, ok := c.miners[forgetful].inValues.Get(uint64(1))
	require.True(t, ok)
	lost := cached.(types.Hash)
	c.miners[forgetful].inValues.Remove(uint64(1))

	c.mineRound()
	second := c.round(2)
	m := second.Miner(forgetful)
	require.Equal(t, lost, m.PreviousInValue)
	require.Equal(t, c.round(1).Miner(forgetful).OutValue, utils.HashOf(m.PreviousInValue))
	require.GreaterOrEqual(t, len(m.DecryptedPieces), SecretSharingThreshold(4))
}

func TestSecretSharingDisabled(t *testing.T) {
	config := testConfig()
	config.IsSecretSharingEnabled = false
	c := newTestChain(t, 3, config)
	c.mineRound()
	c.mineRound()

	for _, m := range c.round(2).Miners {
		require.Empty(t, m.EncryptedPieces)
		require.Empty(t, m.DecryptedPieces)
	}
	require.Empty(t, c.secrets)
}

func TestMissedSlotsAreSupplied(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	c.mineRound()
	absent := c.genesis[3]
	c.mineRound(absent)

	second := c.round(2)
	m := second.Miner(absent)
	require.True(t, m.OutValue.IsEmpty())
	require.False(t, m.Signature.IsEmpty(), "signature of a missing miner is filled in")
	require.Equal(t, c.round(1).CalculateSignature(m.PreviousInValue), m.Signature)
	require.Equal(t, uint64(1), c.current().Miner(absent).MissedTimeSlots)
}

func TestNextTerm(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	newcomer := c.newMiner().Pubkey()
	c.registry.victories = append(append([]string(nil), c.genesis...), newcomer)

	c.mineRound()
	lastOfTerm := c.current()
	c.mineRoundWith(consensus.NextTerm)

	current := c.current()
	require.Equal(t, uint64(3), current.RoundNumber)
	require.Equal(t, uint64(2), current.TermNumber)
	require.True(t, current.IsMinerListJustChanged)
	require.Equal(t, 5, current.Len())
	require.True(t, current.IsInMinerList(newcomer))
	require.Equal(t, lastOfTerm.ExtraBlockProducer().Pubkey, current.ExtraBlockProducerOfPreviousRound)
	require.Equal(t, uint64(1), current.Miner(current.ExtraBlockProducerOfPreviousRound).ProducedBlocks)
	require.Equal(t, c.round(2).ConfirmedIrreversibleBlockHeight, current.ConfirmedIrreversibleBlockHeight)

	ctx := context.Background()
	term, err := c.engine.API().GetCurrentTermNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), term)
	miners, err := c.engine.API().GetMinerListByTerm(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, current.Pubkeys(), miners)
	require.Equal(t, miners, c.registry.minerLists[2])

	snapshot, err := c.engine.API().GetTermSnapshot(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, uint64(2), snapshot.EndRoundNumber)
	require.Equal(t, c.round(2).MinedBlocks(), snapshot.MinedBlocks)

	require.Len(t, c.treasury.summaries, 1)
	summary := c.treasury.summaries[0]
	require.Equal(t, uint64(1), summary.TermNumber)
	require.Len(t, summary.Miners, 4)
	for _, pubkey := range c.genesis {
		require.Equal(t, c.round(2).Miner(pubkey).ProducedBlocks, summary.ProducedBlocks[pubkey])
	}

	// the new term keeps going with the newcomer
	c.mineRound()
	c.mineRound()
	require.Equal(t, uint64(5), c.current().RoundNumber)
	require.False(t, c.round(4).Miner(newcomer).OutValue.IsEmpty())
}

func TestNextTermMinersCount(t *testing.T) {
	tests := []struct {
		name     string
		interval uint64
		want     int
	}{
		{name: "supposed", interval: 365 * 24 * 3600, want: 4},
		{name: "grown to maximum", interval: 1, want: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.SupposedMinersCount = 4
			config.MaximumMinersCount = 6
			config.MinerIncreaseInterval = tt.interval
			c := newTestChain(t, 4, config)

			var victories []string
			for i := 0; i < 3; i++ {
				victories = append(victories, c.newMiner().Pubkey())
			}
			victories = append(victories, c.genesis...)
			c.registry.victories = victories

			c.mineRound()
			next := c.mineRoundWith(consensus.NextTerm)
			require.Equal(t, uint64(2), next.TermNumber)
			require.Equal(t, tt.want, next.Len())
			for _, pubkey := range victories[:tt.want] {
				require.True(t, next.IsInMinerList(pubkey), "elected %s missing", pubkey[:8])
			}
		})
	}
}

func TestSideChainNeverChangesTerm(t *testing.T) {
	config := testConfig()
	config.IsMainChain = false
	c := newTestChain(t, 3, config)
	c.mineRound()

	current := c.current()
	ebp := current.ExtraBlockProducer().Pubkey
	_, err := c.miners[ebp].Produce(context.Background(), c.block(ebp, current.ExtraBlockMiningTime()), consensus.NextTerm)
	require.ErrorIs(t, err, ErrInvalidHeaderInformation)
}

func TestEvilMinerIsReplaced(t *testing.T) {
	config := testConfig()
	config.TolerableMissedTimeSlotsCount = 2
	c := newTestChain(t, 5, config)
	evil := c.genesis[1]
	alternative := c.newMiner().Pubkey()
	c.registry.candidates = []string{alternative}

	replaced := make(chan MinerReplaced, 4)
	sub := c.engine.SubscribeMinerReplaced(replaced)
	defer sub.Unsubscribe()

	c.mineRound()
	c.mineRound(evil)
	require.False(t, c.registry.IsBanned(evil))
	c.mineRound(evil)
	require.True(t, c.registry.IsBanned(evil), "banned once the tolerance is reached")
	require.Equal(t, uint64(2), c.current().Miner(evil).MissedTimeSlots)

	// a banned miner gets no command and its blocks are refused
	current := c.current()
	cmd, err := c.engine.GetConsensusCommand(context.Background(), evil, current.RoundStartTime())
	require.NoError(t, err)
	require.False(t, cmd.IsValid())
	slot := current.Miner(evil).ExpectedMiningTime
	err = c.apply(c.header(evil, consensus.UpdateValue, slot), slot)
	require.ErrorIs(t, err, ErrBanned)

	// the alternative takes over the slot in the next round
	c.mineRound(evil)
	next := c.current()
	require.False(t, next.IsInMinerList(evil))
	require.True(t, next.IsInMinerList(alternative))
	require.True(t, next.IsMinerListJustChanged)
	require.Equal(t, 5, next.Len())
	require.NoError(t, next.Validate())

	require.Equal(t, []MinerReplacement{{OldPubkey: evil, NewPubkey: alternative, IsEvil: true}}, c.registry.replaced)
	require.Len(t, replaced, 1)
	ev := <-replaced
	require.Equal(t, MinerReplaced{TermNumber: 1, OldPubkey: evil, NewPubkey: alternative, IsEvil: true}, ev)

	stored, err := c.engine.API().GetMinerReplacements(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []rawdb.MinerReplacement{{OldPubkey: evil, NewPubkey: alternative, IsEvil: true}}, stored)
	miners, err := c.engine.API().GetMinerListByTerm(context.Background(), 1)
	require.NoError(t, err)
	require.ElementsMatch(t, next.Pubkeys(), miners)

	c.mineRound()
	require.False(t, c.round(next.RoundNumber).Miner(alternative).OutValue.IsEmpty())
	require.False(t, c.current().IsInMinerList(evil))
}

func TestRefuseMinerListWithoutReplacement(t *testing.T) {
	config := testConfig()
	config.TolerableMissedTimeSlotsCount = 1
	c := newTestChain(t, 4, config)
	evil := c.genesis[2]
	alternative := c.newMiner().Pubkey()
	c.registry.candidates = []string{alternative}

	c.mineRound()
	c.mineRound(evil)
	require.True(t, c.registry.IsBanned(evil))

	current := c.current()
	for _, m := range current.OrderedMiners() {
		if m.Pubkey != evil {
			c.produce(m.Pubkey, consensus.UpdateValue, m.ExpectedMiningTime)
		}
	}
	terminator, closeTime := current.ExtraBlockProducer().Pubkey, current.ExtraBlockMiningTime()
	if terminator == evil {
		terminator, closeTime = c.genesis[0], current.ExpectedEndTime()
	}
	header := c.header(terminator, consensus.NextRound, closeTime)
	alt := header.Round.Miner(alternative)
	require.NotNil(t, alt)

	// put the evil miner back in the slot of its alternative
	header.Round.RemoveMiner(alternative)
	kept := alt.Clone()
	kept.Pubkey = evil
	require.NoError(t, header.Round.AddMiner(kept))

	err := c.apply(header, closeTime)
	require.ErrorIs(t, err, ErrInvalidMinerList)
}

func TestRecordCandidateReplacement(t *testing.T) {
	c := newTestChain(t, 4, testConfig())
	c.mineRound()

	old := c.genesis[1]
	newcomer := c.newMiner().Pubkey()
	ctx := context.Background()
	require.NoError(t, c.engine.RecordCandidateReplacement(ctx, old, newcomer))
	require.ErrorIs(t, c.engine.RecordCandidateReplacement(ctx, old, newcomer), ErrNotMiner)

	current := c.current()
	require.False(t, current.IsInMinerList(old))
	require.True(t, current.IsInMinerList(newcomer))
	require.True(t, current.IsMinerListJustChanged)
	require.Equal(t, []MinerReplacement{{OldPubkey: old, NewPubkey: newcomer}}, c.registry.replaced)

	c.mineRound()
	c.mineRound()
	require.False(t, c.round(2).Miner(newcomer).OutValue.IsEmpty())
}

func TestResetToRound(t *testing.T) {
	c := newTestChain(t, 3, testConfig())
	for i := 0; i < 3; i++ {
		c.mineRound()
	}
	ctx := context.Background()
	snapshot := c.round(2)
	require.NoError(t, c.engine.ResetToRound(ctx, snapshot))

	current := c.current()
	require.Equal(t, uint64(2), current.RoundNumber)
	require.Equal(t, snapshot.Hash(true), current.Hash(true))
	_, err := c.engine.API().GetRoundInformation(ctx, 3)
	require.ErrorIs(t, err, ErrUnknownRound)

	require.ErrorIs(t, c.engine.ResetToRound(ctx, round.NewRound(2, 1)), ErrEmptyMinerList)
}

func TestKVDatabase(t *testing.T) {
	db := rawdb.NewMemoryDatabase(t.TempDir())
	defer db.Close()

	c := newTestChainWithDatabase(t, 3, testConfig(), NewKVDatabase(db))
	c.mineRound()
	c.mineRound()
	c.engine.rounds.Purge()

	current := c.current()
	require.Equal(t, uint64(3), current.RoundNumber)
	second := c.round(2)
	for _, m := range second.Miners {
		require.False(t, m.OutValue.IsEmpty())
		require.Equal(t, c.round(1).Miner(m.Pubkey).OutValue, utils.HashOf(m.PreviousInValue))
	}
	c.mineRound()
	require.Equal(t, uint64(4), c.current().RoundNumber)
}

func TestRoundsArePruned(t *testing.T) {
	config := testConfig()
	config.KeepRounds = 3
	c := newTestChain(t, 3, config)
	for i := 0; i < 4; i++ {
		c.mineRound()
	}
	_, err := c.engine.API().GetRoundInformation(context.Background(), 1)
	require.ErrorIs(t, err, ErrUnknownRound)
	require.Equal(t, uint64(3), c.round(3).RoundNumber)
	require.Equal(t, uint64(5), c.current().RoundNumber)
}
