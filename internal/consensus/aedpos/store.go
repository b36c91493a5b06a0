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

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/ledgerwatch/erigon-lib/kv"
)

// StateReader gives read access to the persisted consensus state.
type StateReader interface {
	Round(number uint64) (*round.Round, error)
	CurrentRoundNumber() (uint64, error)
	CurrentTermNumber() (uint64, error)
	BlockchainStartTimestamp() (uint64, error)
	FirstRoundNumberOfTerm(term uint64) (uint64, bool, error)
	MinerList(term uint64) ([]string, error)
	LatestPubkeyToTinyBlocksCount() (*rawdb.LatestPubkeyToTinyBlocksCount, error)
	PreviousBlockInSevereStatus() (bool, error)
	TermSnapshot(term uint64) (*rawdb.TermSnapshot, error)
	MinerReplacements(term uint64) ([]rawdb.MinerReplacement, error)
}

// StateWriter is the mutable view handed to a block transition. Everything written
// through it commits or rolls back together.
type StateWriter interface {
	StateReader

	PutRound(r *round.Round) error
	DeleteRound(number uint64) error
	TruncateRounds(from uint64) error
	SetCurrentRoundNumber(number uint64) error
	SetCurrentTermNumber(number uint64) error
	SetBlockchainStartTimestamp(ts uint64) error
	SetFirstRoundNumberOfTerm(term, roundNumber uint64) error
	SetMinerList(term uint64, miners []string) error
	SetLatestPubkeyToTinyBlocksCount(v *rawdb.LatestPubkeyToTinyBlocksCount) error
	SetPreviousBlockInSevereStatus(severe bool) error
	PutTermSnapshot(s *rawdb.TermSnapshot) error
	SetMinerReplacements(term uint64, replacements []rawdb.MinerReplacement) error
}

// Database runs consensus state transactions.
type Database interface {
	View(ctx context.Context, f func(StateReader) error) error
	Update(ctx context.Context, f func(StateWriter) error) error
}

type kvDatabase struct {
	db kv.RwDB
}

// NewKVDatabase stores the consensus state in an erigon kv database, usually the one
// returned by rawdb.OpenDatabase.
func NewKVDatabase(db kv.RwDB) Database {
	return &kvDatabase{db: db}
}

func (d *kvDatabase) View(ctx context.Context, f func(StateReader) error) error {
	return d.db.View(ctx, func(tx kv.Tx) error {
		return f(&kvReader{tx: tx})
	})
}

func (d *kvDatabase) Update(ctx context.Context, f func(StateWriter) error) error {
	return d.db.Update(ctx, func(tx kv.RwTx) error {
		return f(&kvWriter{kvReader: kvReader{tx: tx}, tx: tx})
	})
}

type kvReader struct {
	tx kv.Tx
}

func (r *kvReader) Round(number uint64) (*round.Round, error) {
	return rawdb.ReadRound(r.tx, number)
}

func (r *kvReader) CurrentRoundNumber() (uint64, error) {
	return rawdb.ReadCurrentRoundNumber(r.tx)
}

func (r *kvReader) CurrentTermNumber() (uint64, error) {
	return rawdb.ReadCurrentTermNumber(r.tx)
}

func (r *kvReader) BlockchainStartTimestamp() (uint64, error) {
	return rawdb.ReadBlockchainStartTimestamp(r.tx)
}

func (r *kvReader) FirstRoundNumberOfTerm(term uint64) (uint64, bool, error) {
	return rawdb.ReadFirstRoundNumberOfTerm(r.tx, term)
}

func (r *kvReader) MinerList(term uint64) ([]string, error) {
	return rawdb.ReadMinerList(r.tx, term)
}

func (r *kvReader) LatestPubkeyToTinyBlocksCount() (*rawdb.LatestPubkeyToTinyBlocksCount, error) {
	return rawdb.ReadLatestPubkeyToTinyBlocksCount(r.tx)
}

func (r *kvReader) PreviousBlockInSevereStatus() (bool, error) {
	return rawdb.ReadPreviousBlockInSevereStatus(r.tx)
}

func (r *kvReader) TermSnapshot(term uint64) (*rawdb.TermSnapshot, error) {
	return rawdb.ReadTermSnapshot(r.tx, term)
}

func (r *kvReader) MinerReplacements(term uint64) ([]rawdb.MinerReplacement, error) {
	return rawdb.ReadMinerReplacements(r.tx, term)
}

type kvWriter struct {
	kvReader
	tx kv.RwTx
}

func (w *kvWriter) PutRound(r *round.Round) error {
	return rawdb.WriteRound(w.tx, r)
}

func (w *kvWriter) DeleteRound(number uint64) error {
	return rawdb.DeleteRound(w.tx, number)
}

func (w *kvWriter) TruncateRounds(from uint64) error {
	return rawdb.TruncateRounds(w.tx, from)
}

func (w *kvWriter) SetCurrentRoundNumber(number uint64) error {
	return rawdb.WriteCurrentRoundNumber(w.tx, number)
}

func (w *kvWriter) SetCurrentTermNumber(number uint64) error {
	return rawdb.WriteCurrentTermNumber(w.tx, number)
}

func (w *kvWriter) SetBlockchainStartTimestamp(ts uint64) error {
	return rawdb.WriteBlockchainStartTimestamp(w.tx, ts)
}

func (w *kvWriter) SetFirstRoundNumberOfTerm(term, roundNumber uint64) error {
	return rawdb.WriteFirstRoundNumberOfTerm(w.tx, term, roundNumber)
}

func (w *kvWriter) SetMinerList(term uint64, miners []string) error {
	return rawdb.WriteMinerList(w.tx, term, miners)
}

func (w *kvWriter) SetLatestPubkeyToTinyBlocksCount(v *rawdb.LatestPubkeyToTinyBlocksCount) error {
	return rawdb.WriteLatestPubkeyToTinyBlocksCount(w.tx, v)
}

func (w *kvWriter) SetPreviousBlockInSevereStatus(severe bool) error {
	return rawdb.WritePreviousBlockInSevereStatus(w.tx, severe)
}

func (w *kvWriter) PutTermSnapshot(s *rawdb.TermSnapshot) error {
	return rawdb.WriteTermSnapshot(w.tx, s)
}

func (w *kvWriter) SetMinerReplacements(term uint64, replacements []rawdb.MinerReplacement) error {
	return rawdb.WriteMinerReplacements(w.tx, term, replacements)
}
