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
	"fmt"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/modules"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/pkg/errors"
)

// ReadRound retrieves the round with the given number, nil if it was never stored
// or has been pruned.
func ReadRound(db kv.Getter, number uint64) (*round.Round, error) {
	data, err := db.GetOne(modules.Rounds, modules.EncodeNumber(number))
	if err != nil {
		return nil, errors.Wrapf(err, "read round %d", number)
	}
	if len(data) == 0 {
		return nil, nil
	}
	r := new(round.Round)
	if err := rlp.DecodeBytes(data, r); err != nil {
		return nil, errors.Wrapf(err, "decode round %d", number)
	}
	return r, nil
}

// WriteRound stores r under its round number.
func WriteRound(db kv.Putter, r *round.Round) error {
	data, err := rlp.EncodeToBytes(r)
	if err != nil {
		return errors.Wrapf(err, "encode round %d", r.RoundNumber)
	}
	if err := db.Put(modules.Rounds, modules.EncodeNumber(r.RoundNumber), data); err != nil {
		return fmt.Errorf("failed to store round %d: %w", r.RoundNumber, err)
	}
	return nil
}

func DeleteRound(db kv.Deleter, number uint64) error {
	return db.Delete(modules.Rounds, modules.EncodeNumber(number))
}

// TruncateRounds removes every round from number on.
func TruncateRounds(tx kv.RwTx, from uint64) error {
	var keys [][]byte
	if err := tx.ForEach(modules.Rounds, modules.EncodeNumber(from), func(k, v []byte) error {
		keys = append(keys, append([]byte{}, k...))
		return nil
	}); err != nil {
		return fmt.Errorf("TruncateRounds: %w", err)
	}
	for _, k := range keys {
		if err := tx.Delete(modules.Rounds, k); err != nil {
			return err
		}
	}
	return nil
}

func readUint64(db kv.Getter, table string, key []byte) (uint64, bool, error) {
	data, err := db.GetOne(table, key)
	if err != nil {
		return 0, false, err
	}
	if len(data) == 0 {
		return 0, false, nil
	}
	v, err := modules.DecodeNumber(data)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// ReadStateNumber reads one of the numeric consensus state keys.
func ReadStateNumber(db kv.Getter, key string) (uint64, bool, error) {
	return readUint64(db, modules.ConsensusState, []byte(key))
}

func WriteStateNumber(db kv.Putter, key string, v uint64) error {
	return db.Put(modules.ConsensusState, []byte(key), modules.EncodeNumber(v))
}

func ReadCurrentRoundNumber(db kv.Getter) (uint64, error) {
	v, _, err := ReadStateNumber(db, modules.CurrentRoundNumberKey)
	return v, err
}

func WriteCurrentRoundNumber(db kv.Putter, number uint64) error {
	return WriteStateNumber(db, modules.CurrentRoundNumberKey, number)
}

func ReadCurrentTermNumber(db kv.Getter) (uint64, error) {
	v, _, err := ReadStateNumber(db, modules.CurrentTermNumberKey)
	return v, err
}

func WriteCurrentTermNumber(db kv.Putter, number uint64) error {
	return WriteStateNumber(db, modules.CurrentTermNumberKey, number)
}

func ReadBlockchainStartTimestamp(db kv.Getter) (uint64, error) {
	v, _, err := ReadStateNumber(db, modules.BlockchainStartTimestampKey)
	return v, err
}

func WriteBlockchainStartTimestamp(db kv.Putter, ts uint64) error {
	return WriteStateNumber(db, modules.BlockchainStartTimestampKey, ts)
}

// LatestPubkeyToTinyBlocksCount tracks the remaining continuous blocks of the miner
// that produced the latest block.
type LatestPubkeyToTinyBlocksCount struct {
	Pubkey      string `json:"pubkey"`
	BlocksCount int64  `json:"blocksCount"`
}

func ReadLatestPubkeyToTinyBlocksCount(db kv.Getter) (*LatestPubkeyToTinyBlocksCount, error) {
	data, err := db.GetOne(modules.ConsensusState, []byte(modules.LatestPubkeyToTinyBlocksCountKey))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var v LatestPubkeyToTinyBlocksCount
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteLatestPubkeyToTinyBlocksCount stores v, a nil v clears it.
func WriteLatestPubkeyToTinyBlocksCount(db kv.Putter, v *LatestPubkeyToTinyBlocksCount) error {
	if v == nil {
		return db.Put(modules.ConsensusState, []byte(modules.LatestPubkeyToTinyBlocksCountKey), []byte{})
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Put(modules.ConsensusState, []byte(modules.LatestPubkeyToTinyBlocksCountKey), data)
}

func ReadPreviousBlockInSevereStatus(db kv.Getter) (bool, error) {
	data, err := db.GetOne(modules.ConsensusState, []byte(modules.PreviousBlockInSevereStatusKey))
	if err != nil {
		return false, err
	}
	return len(data) == 1 && data[0] == 1, nil
}

func WritePreviousBlockInSevereStatus(db kv.Putter, severe bool) error {
	v := []byte{0}
	if severe {
		v[0] = 1
	}
	return db.Put(modules.ConsensusState, []byte(modules.PreviousBlockInSevereStatusKey), v)
}

// ReadFirstRoundNumberOfTerm returns the first round of term and whether it is known.
func ReadFirstRoundNumberOfTerm(db kv.Getter, term uint64) (uint64, bool, error) {
	return readUint64(db, modules.FirstRoundNumberOfTerm, modules.EncodeNumber(term))
}

func WriteFirstRoundNumberOfTerm(db kv.Putter, term, roundNumber uint64) error {
	return db.Put(modules.FirstRoundNumberOfTerm, modules.EncodeNumber(term), modules.EncodeNumber(roundNumber))
}

// ReadMinerList returns the miners elected for term, nil if unknown.
func ReadMinerList(db kv.Getter, term uint64) ([]string, error) {
	data, err := db.GetOne(modules.MinerList, modules.EncodeNumber(term))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var miners []string
	if err := rlp.DecodeBytes(data, &miners); err != nil {
		return nil, errors.Wrapf(err, "decode miner list of term %d", term)
	}
	return miners, nil
}

func WriteMinerList(db kv.Putter, term uint64, miners []string) error {
	data, err := rlp.EncodeToBytes(miners)
	if err != nil {
		return err
	}
	return db.Put(modules.MinerList, modules.EncodeNumber(term), data)
}

// TermSnapshot summarises a finished term.
type TermSnapshot struct {
	TermNumber     uint64            `json:"termNumber"`
	EndRoundNumber uint64            `json:"endRoundNumber"`
	MinedBlocks    uint64            `json:"minedBlocks"`
	ElectionResult map[string]uint64 `json:"electionResult"` // pubkey -> produced blocks
}

func ReadTermSnapshot(db kv.Getter, term uint64) (*TermSnapshot, error) {
	data, err := db.GetOne(modules.TermSnapshot, modules.EncodeNumber(term))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var s TermSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func WriteTermSnapshot(db kv.Putter, s *TermSnapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return db.Put(modules.TermSnapshot, modules.EncodeNumber(s.TermNumber), data)
}

// MinerReplacement records a miner swapped out during a term.
type MinerReplacement struct {
	OldPubkey string `json:"oldPubkey"`
	NewPubkey string `json:"newPubkey"`
	IsEvil    bool   `json:"isEvil"`
}

func ReadMinerReplacements(db kv.Getter, term uint64) ([]MinerReplacement, error) {
	data, err := db.GetOne(modules.MinerReplacement, modules.EncodeNumber(term))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var replacements []MinerReplacement
	if err := json.Unmarshal(data, &replacements); err != nil {
		return nil, errors.Wrapf(err, "decode replacements of term %d", term)
	}
	return replacements, nil
}

func WriteMinerReplacements(db kv.Putter, term uint64, replacements []MinerReplacement) error {
	data, err := json.Marshal(replacements)
	if err != nil {
		return err
	}
	return db.Put(modules.MinerReplacement, modules.EncodeNumber(term), data)
}
