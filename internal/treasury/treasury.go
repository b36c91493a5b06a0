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

// Package treasury turns the term summaries of the consensus into miner rewards.
package treasury

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"
)

var ErrTermRecorded = errors.New("term reward already recorded")

// BanList tells which miners lost their reward.
type BanList interface {
	IsBanned(pubkey string) bool
}

var _ aedpos.Treasury = (*Treasury)(nil)

// Treasury implements aedpos.Treasury on top of the Reward table.
type Treasury struct {
	lock sync.Mutex
	db   kv.RwDB

	rewardPerBlock *uint256.Int
	bans           BanList

	log log.Logger
}

// New returns a treasury paying rewardPerBlock for every block a miner produced.
// bans may be nil.
func New(db kv.RwDB, rewardPerBlock *uint256.Int, bans BanList) *Treasury {
	return &Treasury{
		db:             db,
		rewardPerBlock: rewardPerBlock.Clone(),
		bans:           bans,
		log:            log.New("module", "treasury"),
	}
}

// Weights returns the number of blocks every miner is paid for. Blocks produced under
// a pubkey that replaced another one without misbehaviour count for the original
// pubkey. Evil and banned miners get nothing.
func Weights(summary *aedpos.TermSummary, bans BanList) map[string]uint64 {
	origin := make(map[string]string)
	evil := make(map[string]bool)
	for _, rep := range summary.Replacements {
		if rep.IsEvil {
			evil[rep.OldPubkey] = true
			continue
		}
		origin[rep.NewPubkey] = rep.OldPubkey
	}
	owner := func(pubkey string) string {
		for seen := 0; seen <= len(origin); seen++ {
			old, ok := origin[pubkey]
			if !ok {
				break
			}
			pubkey = old
		}
		return pubkey
	}

	weights := make(map[string]uint64)
	for pubkey, blocks := range summary.ProducedBlocks {
		if blocks == 0 {
			continue
		}
		o := owner(pubkey)
		if evil[o] || (bans != nil && (bans.IsBanned(o) || bans.IsBanned(pubkey))) {
			continue
		}
		weights[o] += blocks
	}
	return weights
}

// RecordTermSummary pays the miners of a finished term. A term is paid once.
func (t *Treasury) RecordTermSummary(summary *aedpos.TermSummary) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	weights := Weights(summary, t.bans)
	entry := rawdb.NewRewardEntry()
	total := uint256.NewInt(0)
	for pubkey, w := range weights {
		reward := new(uint256.Int).Mul(uint256.NewInt(w), t.rewardPerBlock)
		entry[pubkey] = reward
		total.Add(total, reward)
	}

	err := t.db.Update(context.Background(), func(tx kv.RwTx) error {
		stored, err := rawdb.GetTermReward(tx, summary.TermNumber)
		if err != nil {
			return err
		}
		if stored != nil {
			return ErrTermRecorded
		}
		if err := rawdb.PutTermReward(tx, summary.TermNumber, entry); err != nil {
			return err
		}
		for _, pubkey := range sortedKeys(entry) {
			balance, err := rawdb.GetAccountReward(tx, pubkey)
			if err != nil {
				return err
			}
			if err := rawdb.PutAccountReward(tx, pubkey, balance.Add(balance, entry[pubkey])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.log.Info("Term reward recorded", "term", summary.TermNumber, "miners", len(entry), "total", total.ToBig().String())
	return nil
}

// TermReward returns what every miner earned in term, nil if the term was not paid.
func (t *Treasury) TermReward(term uint64) (rawdb.RewardEntry, error) {
	var entry rawdb.RewardEntry
	err := t.db.View(context.Background(), func(tx kv.Tx) (err error) {
		entry, err = rawdb.GetTermReward(tx, term)
		return err
	})
	return entry, err
}

// AccountReward returns everything pubkey earned so far.
func (t *Treasury) AccountReward(pubkey string) (*uint256.Int, error) {
	var balance *uint256.Int
	err := t.db.View(context.Background(), func(tx kv.Tx) (err error) {
		balance, err = rawdb.GetAccountReward(tx, pubkey)
		return err
	})
	return balance, err
}

func sortedKeys(entry rawdb.RewardEntry) []string {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
