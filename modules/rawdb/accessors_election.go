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

package rawdb

import (
	"encoding/json"

	"github.com/amazechain/aedpos/modules"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/pkg/errors"
)

// Candidate is the election record of a pubkey.
type Candidate struct {
	Pubkey          string `json:"pubkey"`
	Votes           uint64 `json:"votes"`
	ProducedBlocks  uint64 `json:"producedBlocks"`
	MissedTimeSlots uint64 `json:"missedTimeSlots"`
	IsEvil          bool   `json:"isEvil"`
	ReplacedBy      string `json:"replacedBy,omitempty"`
}

func ReadCandidate(db kv.Getter, pubkey string) (*Candidate, error) {
	data, err := db.GetOne(modules.Election, []byte(pubkey))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "decode candidate %s", pubkey)
	}
	return &c, nil
}

func WriteCandidate(db kv.Putter, c *Candidate) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return db.Put(modules.Election, []byte(c.Pubkey), data)
}

// ReadCandidates returns every stored candidate ordered by pubkey.
func ReadCandidates(tx kv.Tx) ([]*Candidate, error) {
	var candidates []*Candidate
	err := tx.ForEach(modules.Election, nil, func(k, v []byte) error {
		var c Candidate
		if err := json.Unmarshal(v, &c); err != nil {
			return errors.Wrapf(err, "decode candidate %s", k)
		}
		candidates = append(candidates, &c)
		return nil
	})
	return candidates, err
}
