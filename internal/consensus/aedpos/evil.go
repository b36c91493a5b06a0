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
	"github.com/amazechain/aedpos/common/round"
)

// detectEvilMiners returns the miners of next that missed too many time slots.
func (e *AEDPoS) detectEvilMiners(next *round.Round) []string {
	var evil []string
	for _, m := range next.OrderedMiners() {
		if m.MissedTimeSlots >= e.config.TolerableMissedTimeSlotsCount && !e.election.IsBanned(m.Pubkey) {
			evil = append(evil, m.Pubkey)
		}
	}
	return evil
}

// apply hands the outcome of a committed block to the registry and the treasury, then
// notifies subscribers.
func (e *AEDPoS) apply(p *pendingEvents) {
	for _, pubkey := range p.evil {
		e.log.Warn("Evil miner detected", "pubkey", pubkey)
		e.election.MarkEvil(pubkey)
		evilMinersCounter.Inc(1)
	}
	for _, r := range p.replaced {
		e.log.Info("Miner replaced", "term", r.TermNumber, "old", r.OldPubkey, "new", r.NewPubkey, "evil", r.IsEvil)
		e.election.RecordMinerReplacement(r.OldPubkey, r.NewPubkey, r.TermNumber, r.IsEvil)
		replacementsCounter.Inc(1)
	}
	if p.minerList != nil {
		e.election.SetMinerList(p.minerList.term, p.minerList.miners)
	}
	if p.summary != nil && e.treasury != nil {
		if err := e.treasury.RecordTermSummary(p.summary); err != nil {
			e.log.Error("Failed to record term summary", "term", p.summary.TermNumber, "err", err)
		}
	}
	e.emit(p)
}
