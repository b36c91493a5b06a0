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
	"sync"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/google/btree"
)

type roundItem struct {
	number uint64
	round  *round.Round
}

func roundLess(a, b roundItem) bool { return a.number < b.number }

// memoryState is one immutable generation of the in-memory store. Updates work on a
// copy and replace the generation on success.
type memoryState struct {
	rounds *btree.BTreeG[roundItem]

	currentRound, currentTerm, startTimestamp uint64

	firstRounds  map[uint64]uint64
	minerLists   map[uint64][]string
	snapshots    map[uint64]*rawdb.TermSnapshot
	replacements map[uint64][]rawdb.MinerReplacement

	latestTinyBlocks *rawdb.LatestPubkeyToTinyBlocksCount
	severe           bool
}

func (s *memoryState) copy() *memoryState {
	c := *s
	c.rounds = s.rounds.Clone()
	c.firstRounds = make(map[uint64]uint64, len(s.firstRounds))
	for k, v := range s.firstRounds {
		c.firstRounds[k] = v
	}
	c.minerLists = make(map[uint64][]string, len(s.minerLists))
	for k, v := range s.minerLists {
		c.minerLists[k] = v
	}
	c.snapshots = make(map[uint64]*rawdb.TermSnapshot, len(s.snapshots))
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	c.replacements = make(map[uint64][]rawdb.MinerReplacement, len(s.replacements))
	for k, v := range s.replacements {
		c.replacements[k] = v
	}
	return &c
}

type memoryDatabase struct {
	lock  sync.RWMutex
	state *memoryState
}

// NewMemoryDatabase returns a Database held in memory. Rounds live in a copy on write
// btree, so a failed transition leaves no trace.
func NewMemoryDatabase() Database {
	return &memoryDatabase{state: &memoryState{
		rounds:       btree.NewG[roundItem](32, roundLess),
		firstRounds:  make(map[uint64]uint64),
		minerLists:   make(map[uint64][]string),
		snapshots:    make(map[uint64]*rawdb.TermSnapshot),
		replacements: make(map[uint64][]rawdb.MinerReplacement),
	}}
}

func (d *memoryDatabase) View(ctx context.Context, f func(StateReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.lock.RLock()
	s := d.state
	d.lock.RUnlock()
	return f(s)
}

func (d *memoryDatabase) Update(ctx context.Context, f func(StateWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	next := d.state.copy()
	if err := f(next); err != nil {
		return err
	}
	d.state = next
	return nil
}

func (s *memoryState) Round(number uint64) (*round.Round, error) {
	item, ok := s.rounds.Get(roundItem{number: number})
	if !ok {
		return nil, nil
	}
	return item.round.Clone(), nil
}

func (s *memoryState) CurrentRoundNumber() (uint64, error) { return s.currentRound, nil }

func (s *memoryState) CurrentTermNumber() (uint64, error) { return s.currentTerm, nil }

func (s *memoryState) BlockchainStartTimestamp() (uint64, error) { return s.startTimestamp, nil }

func (s *memoryState) FirstRoundNumberOfTerm(term uint64) (uint64, bool, error) {
	n, ok := s.firstRounds[term]
	return n, ok, nil
}

func (s *memoryState) MinerList(term uint64) ([]string, error) {
	return append([]string(nil), s.minerLists[term]...), nil
}

func (s *memoryState) LatestPubkeyToTinyBlocksCount() (*rawdb.LatestPubkeyToTinyBlocksCount, error) {
	if s.latestTinyBlocks == nil {
		return nil, nil
	}
	v := *s.latestTinyBlocks
	return &v, nil
}

func (s *memoryState) PreviousBlockInSevereStatus() (bool, error) { return s.severe, nil }

func (s *memoryState) TermSnapshot(term uint64) (*rawdb.TermSnapshot, error) {
	snapshot, ok := s.snapshots[term]
	if !ok {
		return nil, nil
	}
	c := *snapshot
	c.ElectionResult = make(map[string]uint64, len(snapshot.ElectionResult))
	for k, v := range snapshot.ElectionResult {
		c.ElectionResult[k] = v
	}
	return &c, nil
}

func (s *memoryState) MinerReplacements(term uint64) ([]rawdb.MinerReplacement, error) {
	return append([]rawdb.MinerReplacement(nil), s.replacements[term]...), nil
}

func (s *memoryState) PutRound(r *round.Round) error {
	s.rounds.ReplaceOrInsert(roundItem{number: r.RoundNumber, round: r.Clone()})
	return nil
}

func (s *memoryState) DeleteRound(number uint64) error {
	s.rounds.Delete(roundItem{number: number})
	return nil
}

func (s *memoryState) TruncateRounds(from uint64) error {
	var doomed []uint64
	s.rounds.AscendGreaterOrEqual(roundItem{number: from}, func(item roundItem) bool {
		doomed = append(doomed, item.number)
		return true
	})
	for _, n := range doomed {
		s.rounds.Delete(roundItem{number: n})
	}
	return nil
}

func (s *memoryState) SetCurrentRoundNumber(number uint64) error {
	s.currentRound = number
	return nil
}

func (s *memoryState) SetCurrentTermNumber(number uint64) error {
	s.currentTerm = number
	return nil
}

func (s *memoryState) SetBlockchainStartTimestamp(ts uint64) error {
	s.startTimestamp = ts
	return nil
}

func (s *memoryState) SetFirstRoundNumberOfTerm(term, roundNumber uint64) error {
	s.firstRounds[term] = roundNumber
	return nil
}

func (s *memoryState) SetMinerList(term uint64, miners []string) error {
	s.minerLists[term] = append([]string(nil), miners...)
	return nil
}

func (s *memoryState) SetLatestPubkeyToTinyBlocksCount(v *rawdb.LatestPubkeyToTinyBlocksCount) error {
	if v == nil {
		s.latestTinyBlocks = nil
		return nil
	}
	c := *v
	s.latestTinyBlocks = &c
	return nil
}

func (s *memoryState) SetPreviousBlockInSevereStatus(severe bool) error {
	s.severe = severe
	return nil
}

func (s *memoryState) PutTermSnapshot(snapshot *rawdb.TermSnapshot) error {
	c := *snapshot
	s.snapshots[snapshot.TermNumber] = &c
	return nil
}

func (s *memoryState) SetMinerReplacements(term uint64, replacements []rawdb.MinerReplacement) error {
	s.replacements[term] = append([]rawdb.MinerReplacement(nil), replacements...)
	return nil
}
