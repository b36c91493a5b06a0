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

import "fmt"

// MiningInterval is the distance between the first two time slots of the round (ms).
func (r *Round) MiningInterval() uint64 {
	if len(r.Miners) <= 1 {
		return SingleMinerMiningInterval
	}
	first, second := r.MinerByOrder(1), r.MinerByOrder(2)
	if first == nil || second == nil {
		return SingleMinerMiningInterval
	}
	if d := absDiff(second.ExpectedMiningTime, first.ExpectedMiningTime); d > 0 {
		return d
	}
	return SingleMinerMiningInterval
}

// TotalMilliseconds is the length of the whole round including the extra block slot.
func (r *Round) TotalMilliseconds(miningInterval uint64) uint64 {
	if miningInterval == 0 {
		miningInterval = r.MiningInterval()
	}
	return uint64(len(r.Miners)+1) * miningInterval
}

// RoundStartTime is the expected mining time of the miner with order 1.
func (r *Round) RoundStartTime() uint64 {
	if first := r.FirstMiner(); first != nil {
		return first.ExpectedMiningTime
	}
	return 0
}

// GenerationTime is the moment the round was expected to be generated, one mining
// interval before the first time slot.
func (r *Round) GenerationTime() uint64 {
	start, interval := r.RoundStartTime(), r.MiningInterval()
	if start < interval {
		return 0
	}
	return start - interval
}

// ExtraBlockMiningTime is the slot start of the extra block, right after the last miner.
func (r *Round) ExtraBlockMiningTime() uint64 {
	ordered := r.OrderedMiners()
	if len(ordered) == 0 {
		return 0
	}
	return ordered[len(ordered)-1].ExpectedMiningTime + r.MiningInterval()
}

// ExpectedEndTime is the end of the extra block slot.
func (r *Round) ExpectedEndTime() uint64 {
	return r.ExtraBlockMiningTime() + r.MiningInterval()
}

// IsTimeSlotPassed reports whether the normal slot of pubkey has ended at now. In the
// first round the configured expected times are unreliable, so the slot is derived
// from the actual start of the first miner.
func (r *Round) IsTimeSlotPassed(pubkey string, now uint64) bool {
	m := r.Miner(pubkey)
	if m == nil {
		return false
	}
	interval := r.MiningInterval()
	if r.RoundNumber != 1 {
		return m.ExpectedMiningTime+interval < now
	}
	first := r.FirstMiner()
	if first == nil || len(first.ActualMiningTimes) == 0 {
		return false
	}
	start := first.ActualMiningTimes[0]
	if now < start {
		return false
	}
	expectedOrder := (now-start)/interval + 1
	return uint64(m.Order) < expectedOrder
}

// ArrangeAbnormalMiningTime finds the slot pubkey should use when it has to act
// outside of its normal time slot, typically to terminate the round. The extra block
// producer gets the extra block slot if it is still ahead; everyone else gets its
// order offset inside the round projected after the elapsed whole rounds, which always
// lies past the end of this round.
func (r *Round) ArrangeAbnormalMiningTime(pubkey string, now uint64, mustExceedCurrentRound bool) (uint64, error) {
	m := r.Miner(pubkey)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrMinerNotFound, pubkey)
	}
	interval := r.MiningInterval()
	if !mustExceedCurrentRound {
		if ebp := r.ExtraBlockProducer(); ebp != nil && ebp.Pubkey == pubkey {
			if extra := r.ExtraBlockMiningTime(); extra > now {
				return extra, nil
			}
		}
	}
	start := r.RoundStartTime()
	total := r.TotalMilliseconds(interval)
	var missedRounds uint64
	if now > start {
		missedRounds = (now - start) / total
	}
	return start + (missedRounds+1)*total + uint64(m.Order)*interval, nil
}

// ArrangeNormalMiningTime returns the slot pubkey should produce its value in: its
// expected mining time, or a catch up slot when that has passed. A miner that already
// published its out value is not eligible.
func (r *Round) ArrangeNormalMiningTime(pubkey string, now uint64) (uint64, bool) {
	m := r.Miner(pubkey)
	if m == nil || !m.OutValue.IsEmpty() {
		return 0, false
	}
	if r.IsTimeSlotPassed(pubkey, now) {
		arranged, err := r.ArrangeAbnormalMiningTime(pubkey, now, false)
		if err != nil {
			return 0, false
		}
		return arranged, true
	}
	return m.ExpectedMiningTime, true
}

// CheckRoundTimeSlots verifies that the time slots of the round are consistent: all
// set, increasing by a positive interval and never diverging by more than that interval.
func (r *Round) CheckRoundTimeSlots() error {
	miners := r.OrderedMiners()
	if len(miners) <= 1 {
		return nil
	}
	for _, m := range miners {
		if m.ExpectedMiningTime == 0 {
			return fmt.Errorf("incorrect expected mining time of %s", m.Pubkey)
		}
	}
	if miners[1].ExpectedMiningTime <= miners[0].ExpectedMiningTime {
		return fmt.Errorf("mining interval must be greater than 0")
	}
	base := miners[1].ExpectedMiningTime - miners[0].ExpectedMiningTime
	for i := 1; i < len(miners)-1; i++ {
		if miners[i+1].ExpectedMiningTime <= miners[i].ExpectedMiningTime {
			return fmt.Errorf("time slots of order %d and %d are not increasing", i+1, i+2)
		}
		interval := miners[i+1].ExpectedMiningTime - miners[i].ExpectedMiningTime
		if absDiff(interval, base) > base {
			return fmt.Errorf("time slots are so different: %d vs %d", interval, base)
		}
	}
	return nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// NeedToChangeTerm reports whether at least MinersCountOfConsent miners produced their
// latest block in a period other than the one of termNumber.
func (r *Round) NeedToChangeTerm(blockchainStartTime, termNumber, periodSeconds uint64) bool {
	if periodSeconds == 0 {
		return false
	}
	var count int
	for _, m := range r.Miners {
		if len(m.ActualMiningTimes) == 0 {
			continue
		}
		latest := m.ActualMiningTimes[len(m.ActualMiningTimes)-1]
		if isTimeToChangeTerm(blockchainStartTime, latest, termNumber, periodSeconds) {
			count++
		}
	}
	return count >= r.MinersCountOfConsent()
}

func isTimeToChangeTerm(blockchainStartTime, producedTime, termNumber, periodSeconds uint64) bool {
	if producedTime < blockchainStartTime {
		return false
	}
	return (producedTime-blockchainStartTime)/1000/periodSeconds != termNumber-1
}
