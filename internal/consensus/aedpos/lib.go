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
	"sort"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/modules/rawdb"
	mapset "github.com/deckarep/golang-set/v2"
)

// CalculateLastIrreversibleBlockHeight derives the LIB from the implied irreversible
// heights previous round miners reported, counting only miners that mined in current.
// It returns false when fewer than MinersCountOfConsent heights are available.
func CalculateLastIrreversibleBlockHeight(current, previous *round.Round) (uint64, bool) {
	if current.IsEmpty() || previous.IsEmpty() {
		return 0, false
	}
	var heights []uint64
	for _, m := range current.MinedMiners() {
		reported := previous.Miner(m.Pubkey)
		if reported == nil || reported.ImpliedIrreversibleBlockHeight == 0 {
			continue
		}
		heights = append(heights, reported.ImpliedIrreversibleBlockHeight)
	}
	if len(heights) < current.MinersCountOfConsent() {
		return 0, false
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights[(len(heights)-1)/3], true
}

// MiningStatus grades how far the LIB lags behind the current round.
type MiningStatus uint8

const (
	MiningStatusNormal MiningStatus = iota
	MiningStatusAbnormal
	MiningStatusSevere
)

func (s MiningStatus) String() string {
	switch s {
	case MiningStatusAbnormal:
		return "abnormal"
	case MiningStatusSevere:
		return "severe"
	}
	return "normal"
}

// severeThreshold is the LIB round lag at which mining becomes severe.
func (e *AEDPoS) severeThreshold() uint64 {
	if e.config.MaximumTinyBlocksCount > severeThresholdRounds {
		return e.config.MaximumTinyBlocksCount
	}
	return severeThresholdRounds
}

func (e *AEDPoS) miningStatus(current *round.Round) MiningStatus {
	libRound := current.ConfirmedIrreversibleBlockRoundNumber
	if libRound == 0 || current.RoundNumber <= libRound {
		return MiningStatusNormal
	}
	lag := current.RoundNumber - libRound
	switch {
	case lag >= e.severeThreshold():
		return MiningStatusSevere
	case lag > abnormalThresholdRounds:
		return MiningStatusAbnormal
	}
	return MiningStatusNormal
}

// maximumBlocksCount is the number of blocks a miner may produce per slot. It shrinks
// while the LIB lags and drops to one once the lag is severe.
func (e *AEDPoS) maximumBlocksCount(r StateReader, current *round.Round) (uint64, MiningStatus, error) {
	status := e.miningStatus(current)
	switch status {
	case MiningStatusSevere:
		return 1, status, nil
	case MiningStatusAbnormal:
		previous, err := e.getRound(r, current.RoundNumber-1)
		if err != nil {
			return 0, status, err
		}
		beforePrevious, err := e.getRound(r, current.RoundNumber-2)
		if err != nil {
			return 0, status, err
		}
		steady := minedPubkeys(previous).Intersect(minedPubkeys(beforePrevious)).Cardinality()
		lag := current.RoundNumber - current.ConfirmedIrreversibleBlockRoundNumber
		factor := uint64(steady) * (e.severeThreshold() - lag)
		n := uint64(current.Len())
		count := (factor + n - 1) / n
		if count > e.config.MaximumTinyBlocksCount {
			count = e.config.MaximumTinyBlocksCount
		}
		if count == 0 {
			count = 1
		}
		return count, status, nil
	}
	return e.config.MaximumTinyBlocksCount, status, nil
}

func minedPubkeys(r *round.Round) mapset.Set[string] {
	set := mapset.NewSet[string]()
	if r == nil {
		return set
	}
	for _, m := range r.MinedMiners() {
		set.Add(m.Pubkey)
	}
	return set
}

// updateMiningStatus keeps the severe flag and the continuous block budget of the
// latest producer after a block of sender was applied to current.
func (e *AEDPoS) updateMiningStatus(w StateWriter, current *round.Round, sender string, height uint64, events *pendingEvents) error {
	maximum, status, err := e.maximumBlocksCount(w, current)
	if err != nil {
		return err
	}
	severe, err := w.PreviousBlockInSevereStatus()
	if err != nil {
		return err
	}
	switch {
	case status == MiningStatusSevere:
		var distance uint64
		if height > current.ConfirmedIrreversibleBlockHeight {
			distance = height - current.ConfirmedIrreversibleBlockHeight
		}
		libDistanceGauge.Update(int64(distance))
		events.unacceptable = append(events.unacceptable, IrreversibleBlockHeightUnacceptable{DistanceToIrreversibleBlockHeight: distance})
		e.log.Warn("LIB lags too far behind", "round", current.RoundNumber, "libRound", current.ConfirmedIrreversibleBlockRoundNumber, "distance", distance)
		if !severe {
			if err := w.SetPreviousBlockInSevereStatus(true); err != nil {
				return err
			}
		}
	case severe:
		libDistanceGauge.Update(0)
		events.unacceptable = append(events.unacceptable, IrreversibleBlockHeightUnacceptable{})
		if err := w.SetPreviousBlockInSevereStatus(false); err != nil {
			return err
		}
	}

	latest, err := w.LatestPubkeyToTinyBlocksCount()
	if err != nil {
		return err
	}
	if latest == nil || latest.Pubkey != sender {
		latest = &rawdb.LatestPubkeyToTinyBlocksCount{Pubkey: sender, BlocksCount: int64(maximum) - 1}
	} else {
		latest.BlocksCount--
	}
	return w.SetLatestPubkeyToTinyBlocksCount(latest)
}
