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
	"sort"

	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/utils"
)

// GetUpdateValueRound extracts the part of the round a block of pubkey carries in its
// header when it publishes its out value: the full record of the sender and, for every
// other miner, only what the sender may have changed.
func (r *Round) GetUpdateValueRound(pubkey string) *Round {
	sender := r.Miner(pubkey)
	if sender == nil {
		return NewRound(r.RoundNumber, r.TermNumber)
	}
	header := NewRound(r.RoundNumber, r.TermNumber)
	header.BlockchainAge = r.BlockchainAge
	header.ExtraBlockProducerOfPreviousRound = r.ExtraBlockProducerOfPreviousRound
	header.ConfirmedIrreversibleBlockHeight = r.ConfirmedIrreversibleBlockHeight
	header.ConfirmedIrreversibleBlockRoundNumber = r.ConfirmedIrreversibleBlockRoundNumber
	header.IsMinerListJustChanged = r.IsMinerListJustChanged
	header.RoundIDForValidation = r.RoundID()

	for _, m := range r.OrderedMiners() {
		if m.Pubkey == pubkey {
			c := m.Clone()
			c.InValue = types.EmptyHash
			c.DecryptedPieces = nil
			c.ActualMiningTimes = lastActualMiningTime(m)
			header.AddMiner(c)
			continue
		}
		other := &MinerInRound{
			Pubkey:                   m.Pubkey,
			Order:                    m.Order,
			IsExtraBlockProducer:     m.IsExtraBlockProducer,
			PreviousInValue:          m.PreviousInValue,
			SupposedOrderOfNextRound: m.SupposedOrderOfNextRound,
			FinalOrderOfNextRound:    m.FinalOrderOfNextRound,
		}
		if p, ok := m.DecryptedPiece(pubkey); ok {
			other.DecryptedPieces = []Piece{{Pubkey: p.Pubkey, Data: utils.Copy(p.Data), Digest: p.Digest}}
		}
		header.AddMiner(other)
	}
	return header
}

// GetTinyBlockRound extracts the part of the round a tiny block of pubkey carries.
func (r *Round) GetTinyBlockRound(pubkey string) *Round {
	header := NewRound(r.RoundNumber, r.TermNumber)
	header.BlockchainAge = r.BlockchainAge
	header.IsMinerListJustChanged = r.IsMinerListJustChanged
	header.RoundIDForValidation = r.RoundID()
	for _, m := range r.OrderedMiners() {
		info := &MinerInRound{
			Pubkey:               m.Pubkey,
			Order:                m.Order,
			IsExtraBlockProducer: m.IsExtraBlockProducer,
		}
		if m.Pubkey == pubkey {
			info.ExpectedMiningTime = m.ExpectedMiningTime
			info.ProducedBlocks = m.ProducedBlocks
			info.ProducedTinyBlocks = m.ProducedTinyBlocks
			info.ActualMiningTimes = lastActualMiningTime(m)
			info.ImpliedIrreversibleBlockHeight = m.ImpliedIrreversibleBlockHeight
		}
		header.AddMiner(info)
	}
	return header
}

func lastActualMiningTime(m *MinerInRound) []uint64 {
	if len(m.ActualMiningTimes) == 0 {
		return nil
	}
	return []uint64{m.ActualMiningTimes[len(m.ActualMiningTimes)-1]}
}

func appendActualMiningTime(m *MinerInRound, provided *MinerInRound) {
	if len(provided.ActualMiningTimes) == 0 {
		return
	}
	latest := provided.ActualMiningTimes[len(provided.ActualMiningTimes)-1]
	if n := len(m.ActualMiningTimes); n > 0 && m.ActualMiningTimes[n-1] == latest {
		return
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, latest)
}

// RecoverFromUpdateValue merges the header round of an update value block into r and
// returns r. Besides the record of the sender, only previous in values revealed for
// other miners and the pieces the sender decrypted for them are taken over; callers
// verify those first. Unknown senders leave r untouched.
func (r *Round) RecoverFromUpdateValue(header *Round, pubkey string) *Round {
	if header == nil {
		return r
	}
	m, provided := r.Miner(pubkey), header.Miner(pubkey)
	if m == nil || provided == nil {
		return r
	}
	m.OutValue = provided.OutValue
	m.Signature = provided.Signature
	if !provided.PreviousInValue.IsEmpty() {
		m.PreviousInValue = provided.PreviousInValue
	}
	m.ProducedBlocks = provided.ProducedBlocks
	m.ProducedTinyBlocks = provided.ProducedTinyBlocks
	m.ImpliedIrreversibleBlockHeight = provided.ImpliedIrreversibleBlockHeight
	m.SupposedOrderOfNextRound = provided.SupposedOrderOfNextRound
	m.FinalOrderOfNextRound = provided.FinalOrderOfNextRound
	for _, p := range provided.EncryptedPieces {
		m.SetEncryptedPiece(Piece{Pubkey: p.Pubkey, Data: utils.Copy(p.Data), Digest: p.Digest})
	}
	appendActualMiningTime(m, provided)

	for _, info := range header.Miners {
		if info.Pubkey == pubkey {
			continue
		}
		target := r.Miner(info.Pubkey)
		if target == nil {
			continue
		}
		// orders of other miners never move, a colliding sender takes the next free order
		if !info.PreviousInValue.IsEmpty() {
			target.PreviousInValue = info.PreviousInValue
		}
		if p, ok := info.DecryptedPiece(pubkey); ok {
			target.SetDecryptedPiece(Piece{Pubkey: p.Pubkey, Data: utils.Copy(p.Data), Digest: p.Digest})
		}
	}
	return r
}

// RecoverFromTinyBlock merges the header round of a tiny block into r and returns r.
func (r *Round) RecoverFromTinyBlock(header *Round, pubkey string) *Round {
	if header == nil {
		return r
	}
	m, provided := r.Miner(pubkey), header.Miner(pubkey)
	if m == nil || provided == nil {
		return r
	}
	// the implied height only moves with an update value
	m.ProducedBlocks = provided.ProducedBlocks
	m.ProducedTinyBlocks = provided.ProducedTinyBlocks
	appendActualMiningTime(m, provided)
	return r
}

type checkableRound struct {
	RoundNumber   uint64
	TermNumber    uint64
	Miners        []*MinerInRound
	BlockchainAge uint64
}

// Hash is the digest two nodes compare to agree on a round. Pieces and actual mining
// times are excluded since they legitimately differ between the header and the state.
func (r *Round) Hash(isContainPreviousInValue bool) types.Hash {
	c := checkableRound{
		RoundNumber:   r.RoundNumber,
		TermNumber:    r.TermNumber,
		BlockchainAge: r.BlockchainAge,
		Miners:        make([]*MinerInRound, 0, len(r.Miners)),
	}
	for _, m := range r.Miners {
		cm := m.Clone()
		cm.EncryptedPieces = nil
		cm.DecryptedPieces = nil
		cm.ActualMiningTimes = nil
		if !isContainPreviousInValue {
			cm.PreviousInValue = types.EmptyHash
		}
		c.Miners = append(c.Miners, cm)
	}
	sort.Slice(c.Miners, func(i, j int) bool { return c.Miners[i].Pubkey < c.Miners[j].Pubkey })
	return utils.RlpHash(c)
}
