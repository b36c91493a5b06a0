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

// produce applies an update value of pubkey the way a node does after executing the block.
func produce(r *Round, pubkey string, supposed uint32, now uint64) {
	r.ApplyNormalConsensusData(pubkey, types.EmptyHash, utils.HashFromString(pubkey), signatureFor(supposed))
	m := r.Miner(pubkey)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	m.ActualMiningTimes = append(m.ActualMiningTimes, now)
	m.ImpliedIrreversibleBlockHeight = 42
}

func TestUpdateValueRoundRecovers(t *testing.T) {
	base, pubkeys := newTestRound(1_000_000)
	produce(base, pubkeys[0], 2, 1_004_100)

	updated := base.Clone()
	produce(updated, pubkeys[1], 2, 1_008_100)
	updated.Miner(pubkeys[1]).SetEncryptedPiece(Piece{Pubkey: pubkeys[2], Data: []byte{1}, Digest: utils.HashFromString("d")})
	updated.Miner(pubkeys[3]).SetDecryptedPiece(Piece{Pubkey: pubkeys[1], Data: []byte{2}})

	header := updated.GetUpdateValueRound(pubkeys[1])
	require.Equal(t, updated.RoundID(), header.RoundIDForValidation)
	require.Equal(t, base.RoundID(), header.RoundID(), "header round id falls back to the bound id")
	require.Equal(t, updated.Len(), header.Len())

	// other miners only reveal their orders
	other := header.Miner(pubkeys[0])
	require.True(t, other.OutValue.IsEmpty())
	require.True(t, other.Signature.IsEmpty())
	require.Equal(t, uint32(2), other.SupposedOrderOfNextRound)
	require.Equal(t, updated.Miner(pubkeys[0]).FinalOrderOfNextRound, other.FinalOrderOfNextRound)

	recovered := base.Clone().RecoverFromUpdateValue(header, pubkeys[1])
	require.Equal(t, updated.Hash(true), recovered.Hash(true))
	require.Equal(t, []uint64{1_008_100}, recovered.Miner(pubkeys[1]).ActualMiningTimes)
	require.Len(t, recovered.Miner(pubkeys[1]).EncryptedPieces, 1)
	p, ok := recovered.Miner(pubkeys[3]).DecryptedPiece(pubkeys[1])
	require.True(t, ok)
	require.Equal(t, []byte{2}, p.Data)

	// recovering twice changes nothing
	again := recovered.Clone().RecoverFromUpdateValue(header, pubkeys[1])
	require.Equal(t, recovered.Hash(true), again.Hash(true))
	require.Equal(t, recovered.Miner(pubkeys[1]).ActualMiningTimes, again.Miner(pubkeys[1]).ActualMiningTimes)

	// unknown senders are ignored
	require.Equal(t, base.Hash(true), base.Clone().RecoverFromUpdateValue(header, "unknown").Hash(true))
}

func TestTinyBlockRoundRecovers(t *testing.T) {
	base, pubkeys := newTestRound(1_000_000)
	produce(base, pubkeys[0], 3, 1_004_100)

	updated := base.Clone()
	m := updated.Miner(pubkeys[0])
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	m.ActualMiningTimes = append(m.ActualMiningTimes, 1_004_600)

	header := updated.GetTinyBlockRound(pubkeys[0])
	require.True(t, header.Miner(pubkeys[0]).OutValue.IsEmpty())
	require.Equal(t, uint64(2), header.Miner(pubkeys[0]).ProducedTinyBlocks)

	recovered := base.Clone().RecoverFromTinyBlock(header, pubkeys[0])
	require.Equal(t, updated.Hash(true), recovered.Hash(true))
	require.Equal(t, []uint64{1_004_100, 1_004_600}, recovered.Miner(pubkeys[0]).ActualMiningTimes)

	// recovery is idempotent
	again := recovered.Clone().RecoverFromTinyBlock(header, pubkeys[0])
	require.Equal(t, recovered.Hash(true), again.Hash(true))
}

func TestTinyBlockKeepsImpliedHeight(t *testing.T) {
	base, pubkeys := newTestRound(1_000_000)
	produce(base, pubkeys[0], 3, 1_004_100)
	stored := base.Miner(pubkeys[0]).ImpliedIrreversibleBlockHeight

	header := base.Clone().GetTinyBlockRound(pubkeys[0])
	header.Miner(pubkeys[0]).ImpliedIrreversibleBlockHeight = stored + 1_000_000

	recovered := base.Clone().RecoverFromTinyBlock(header, pubkeys[0])
	if got := recovered.Miner(pubkeys[0]).ImpliedIrreversibleBlockHeight; got != stored {
		t.Fatalf("implied height moved by tiny block: have %d, want %d", got, stored)
	}
}

func TestRoundHash(t *testing.T) {
	r, pubkeys := newTestRound(1_000_000)
	h := r.Hash(true)

	c := r.Clone()
	c.Miner(pubkeys[0]).ActualMiningTimes = []uint64{1}
	c.Miner(pubkeys[0]).SetEncryptedPiece(Piece{Pubkey: pubkeys[1], Data: []byte{1}})
	c.Miners[0], c.Miners[1] = c.Miners[1], c.Miners[0]
	require.Equal(t, h, c.Hash(true), "pieces, mining times and slice order are not hashed")

	c.Miner(pubkeys[0]).PreviousInValue = utils.HashFromString("prev")
	require.NotEqual(t, h, c.Hash(true))
	require.Equal(t, h, c.Hash(false))

	c.Miner(pubkeys[0]).MissedTimeSlots++
	require.NotEqual(t, h, c.Hash(false))
}
