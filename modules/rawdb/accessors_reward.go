// Copyright 2023 The AmazeChain Authors
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

package rawdb

import (
	"encoding/json"
	"fmt"

	"github.com/amazechain/aedpos/modules"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"
)

// RewardEntry maps a miner pubkey to its share of a term reward.
type RewardEntry map[string]*uint256.Int

func NewRewardEntry() RewardEntry {
	return make(map[string]*uint256.Int, 0)
}

func termRewardKey(term uint64) []byte {
	return []byte(fmt.Sprintf("term:%d", term))
}

func accountRewardKey(pubkey string) []byte {
	return []byte("account:" + pubkey)
}

// PutTermReward stores the reward shares of a term.
func PutTermReward(db kv.Putter, term uint64, val RewardEntry) error {
	valBytes, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return db.Put(modules.Reward, termRewardKey(term), valBytes)
}

func GetTermReward(db kv.Getter, term uint64) (RewardEntry, error) {
	valBytes, err := db.GetOne(modules.Reward, termRewardKey(term))
	if err != nil {
		return nil, err
	}
	if len(valBytes) == 0 {
		return nil, nil
	}
	re := NewRewardEntry()
	if err := json.Unmarshal(valBytes, &re); err != nil {
		return nil, err
	}
	return re, nil
}

// PutAccountReward stores the accumulated reward of a miner.
func PutAccountReward(db kv.Putter, pubkey string, val *uint256.Int) error {
	return db.Put(modules.Reward, accountRewardKey(pubkey), val.Bytes())
}

// GetAccountReward returns the accumulated reward of a miner, zero if none.
func GetAccountReward(db kv.Getter, pubkey string) (*uint256.Int, error) {
	val, err := db.GetOne(modules.Reward, accountRewardKey(pubkey))
	if err != nil {
		return uint256.NewInt(0), err
	}
	return uint256.NewInt(0).SetBytes(val), nil
}
