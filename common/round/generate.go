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
)

// GenerateFirstRoundOfNewTerm builds the first round of a term for the given miners.
// Miners are sorted by the first byte of their pubkey, descending, and the first of
// them produces the extra block. Slots start one interval after blockTime.
func GenerateFirstRoundOfNewTerm(miners []string, miningInterval, blockTime, currentRoundNumber, currentTermNumber uint64) *Round {
	seen := make(map[string]struct{}, len(miners))
	sorted := make([]string, 0, len(miners))
	for _, pubkey := range miners {
		if _, ok := seen[pubkey]; ok || pubkey == "" {
			continue
		}
		seen[pubkey] = struct{}{}
		sorted = append(sorted, pubkey)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return firstByteOf(sorted[i]) > firstByteOf(sorted[j])
	})

	r := NewRound(currentRoundNumber+1, currentTermNumber+1)
	for i, pubkey := range sorted {
		r.AddMiner(&MinerInRound{
			Pubkey:               pubkey,
			Order:                uint32(i + 1),
			IsExtraBlockProducer: i == 0,
			ExpectedMiningTime:   blockTime + uint64(i)*miningInterval + miningInterval,
			PreviousInValue:      types.EmptyHash,
		})
	}
	r.IsMinerListJustChanged = true
	return r
}

// GenerateNextRoundInformation derives the next round of the same term. Miners that
// published a value take their final order of next round, the others fill the remaining
// orders in their current order and are charged a missed time slot.
func (r *Round) GenerateNextRoundInformation(blockTime, blockchainStartTime uint64, isMinerListChanged bool) *Round {
	next := NewRound(r.RoundNumber+1, r.TermNumber)
	next.IsMinerListJustChanged = isMinerListChanged
	next.ConfirmedIrreversibleBlockHeight = r.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = r.ConfirmedIrreversibleBlockRoundNumber

	n := uint32(len(r.Miners))
	interval := r.MiningInterval()

	mined := r.MinedMiners()
	sort.SliceStable(mined, func(i, j int) bool {
		return mined[i].FinalOrderOfNextRound < mined[j].FinalOrderOfNextRound
	})
	occupied := make(map[uint32]bool, n)
	var pending []*MinerInRound
	for _, m := range mined {
		order := m.FinalOrderOfNextRound
		if order == 0 || order > n || occupied[order] {
			pending = append(pending, m)
			continue
		}
		occupied[order] = true
		next.AddMiner(&MinerInRound{
			Pubkey:             m.Pubkey,
			Order:              order,
			ExpectedMiningTime: blockTime + interval*uint64(order),
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    m.MissedTimeSlots,
		})
	}

	var ableOrders []uint32
	for i := uint32(1); i <= n; i++ {
		if !occupied[i] {
			ableOrders = append(ableOrders, i)
		}
	}
	notMined := r.NotMinedMiners()
	for i, m := range append(pending, notMined...) {
		order := ableOrders[i]
		missed := m.MissedTimeSlots
		if m.SupposedOrderOfNextRound == 0 {
			missed++
		}
		next.AddMiner(&MinerInRound{
			Pubkey:             m.Pubkey,
			Order:              order,
			ExpectedMiningTime: blockTime + interval*uint64(order),
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    missed,
		})
	}

	if r.RoundNumber == 1 || blockTime < blockchainStartTime {
		next.BlockchainAge = 1
	} else {
		next.BlockchainAge = (blockTime - blockchainStartTime) / 1000
	}

	ebpOrder := r.NextExtraBlockProducerOrder()
	if ebp := next.MinerByOrder(ebpOrder); ebp != nil {
		ebp.IsExtraBlockProducer = true
	} else if first := next.FirstMiner(); first != nil {
		first.IsExtraBlockProducer = true
	}

	r.breakContinuousMining(next)
	return next
}

// breakContinuousMining swaps slots so that the extra block producer of this round does
// not also open the next round, and the extra block producer of the next round is not
// its last miner.
func (r *Round) breakContinuousMining(next *Round) {
	n := uint32(len(r.Miners))
	if n <= 1 || next.Len() <= 1 {
		return
	}
	swap := func(a, b *MinerInRound) {
		a.Order, b.Order = b.Order, a.Order
		a.ExpectedMiningTime, b.ExpectedMiningTime = b.ExpectedMiningTime, a.ExpectedMiningTime
	}

	first := next.MinerByOrder(1)
	if ebp := r.ExtraBlockProducer(); first != nil && ebp != nil && first.Pubkey == ebp.Pubkey {
		if second := next.MinerByOrder(2); second != nil {
			swap(first, second)
		}
	}

	count := uint32(next.Len())
	last := next.MinerByOrder(count)
	if last == nil {
		return
	}
	if ebp := next.ExtraBlockProducer(); ebp != nil && last.Pubkey == ebp.Pubkey {
		if lastButOne := next.MinerByOrder(count - 1); lastButOne != nil {
			swap(last, lastButOne)
		}
	}
}

// GenerateFirstRound builds round one of term one. Orders follow the given list and
// the first slot opens at startTime.
func GenerateFirstRound(miners []string, miningInterval, startTime uint64) *Round {
	r := NewRound(1, 1)
	for _, pubkey := range miners {
		if pubkey == "" || r.IsInMinerList(pubkey) {
			continue
		}
		order := uint32(r.Len() + 1)
		r.AddMiner(&MinerInRound{
			Pubkey:               pubkey,
			Order:                order,
			IsExtraBlockProducer: order == 1,
			ExpectedMiningTime:   startTime + uint64(order-1)*miningInterval,
		})
	}
	r.BlockchainAge = 1
	return r
}
