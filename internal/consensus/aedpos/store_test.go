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
	"errors"
	"testing"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/stretchr/testify/require"
)

func testDatabases(t *testing.T) map[string]Database {
	kvdb := rawdb.NewMemoryDatabase(t.TempDir())
	t.Cleanup(kvdb.Close)
	return map[string]Database{
		"memory": NewMemoryDatabase(),
		"kv":     NewKVDatabase(kvdb),
	}
}

func storedRound(number uint64) *round.Round {
	return round.GenerateFirstRound([]string{"a", "b", "c"}, testInterval, testStart+number*10*testInterval)
}

func TestDatabaseRoundTrip(t *testing.T) {
	for name, db := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := storedRound(1)
			err := db.Update(ctx, func(w StateWriter) error {
				if err := w.PutRound(r); err != nil {
					return err
				}
				if err := w.SetCurrentRoundNumber(1); err != nil {
					return err
				}
				if err := w.SetCurrentTermNumber(1); err != nil {
					return err
				}
				if err := w.SetBlockchainStartTimestamp(testStart); err != nil {
					return err
				}
				if err := w.SetFirstRoundNumberOfTerm(1, 1); err != nil {
					return err
				}
				if err := w.SetMinerList(1, r.SortedPubkeys()); err != nil {
					return err
				}
				if err := w.SetLatestPubkeyToTinyBlocksCount(&rawdb.LatestPubkeyToTinyBlocksCount{Pubkey: "a", BlocksCount: 7}); err != nil {
					return err
				}
				if err := w.SetPreviousBlockInSevereStatus(true); err != nil {
					return err
				}
				if err := w.PutTermSnapshot(&rawdb.TermSnapshot{TermNumber: 1, EndRoundNumber: 9, MinedBlocks: 30}); err != nil {
					return err
				}
				return w.SetMinerReplacements(1, []rawdb.MinerReplacement{{OldPubkey: "c", NewPubkey: "d", IsEvil: true}})
			})
			require.NoError(t, err)

			err = db.View(ctx, func(r StateReader) error {
				stored, err := r.Round(1)
				require.NoError(t, err)
				require.Equal(t, storedRound(1).Hash(true), stored.Hash(true))
				require.Equal(t, uint32(2), stored.Miner("b").Order)

				missing, err := r.Round(2)
				require.NoError(t, err)
				require.Nil(t, missing)

				number, err := r.CurrentRoundNumber()
				require.NoError(t, err)
				require.Equal(t, uint64(1), number)
				term, err := r.CurrentTermNumber()
				require.NoError(t, err)
				require.Equal(t, uint64(1), term)
				start, err := r.BlockchainStartTimestamp()
				require.NoError(t, err)
				require.Equal(t, uint64(testStart), start)

				first, ok, err := r.FirstRoundNumberOfTerm(1)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, uint64(1), first)
				_, ok, err = r.FirstRoundNumberOfTerm(2)
				require.NoError(t, err)
				require.False(t, ok)

				miners, err := r.MinerList(1)
				require.NoError(t, err)
				require.Equal(t, []string{"a", "b", "c"}, miners)

				latest, err := r.LatestPubkeyToTinyBlocksCount()
				require.NoError(t, err)
				require.Equal(t, &rawdb.LatestPubkeyToTinyBlocksCount{Pubkey: "a", BlocksCount: 7}, latest)

				severe, err := r.PreviousBlockInSevereStatus()
				require.NoError(t, err)
				require.True(t, severe)

				snapshot, err := r.TermSnapshot(1)
				require.NoError(t, err)
				require.Equal(t, uint64(9), snapshot.EndRoundNumber)
				require.Equal(t, uint64(30), snapshot.MinedBlocks)
				snapshot, err = r.TermSnapshot(2)
				require.NoError(t, err)
				require.Nil(t, snapshot)

				replacements, err := r.MinerReplacements(1)
				require.NoError(t, err)
				require.Equal(t, []rawdb.MinerReplacement{{OldPubkey: "c", NewPubkey: "d", IsEvil: true}}, replacements)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestDatabaseFailedUpdate(t *testing.T) {
	errAbort := errors.New("abort")
	for name, db := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Update(ctx, func(w StateWriter) error {
				return w.SetCurrentRoundNumber(1)
			}))
			err := db.Update(ctx, func(w StateWriter) error {
				if err := w.PutRound(storedRound(2)); err != nil {
					return err
				}
				if err := w.SetCurrentRoundNumber(2); err != nil {
					return err
				}
				return errAbort
			})
			require.ErrorIs(t, err, errAbort)

			require.NoError(t, db.View(ctx, func(r StateReader) error {
				number, err := r.CurrentRoundNumber()
				require.NoError(t, err)
				require.Equal(t, uint64(1), number)
				stored, err := r.Round(2)
				require.NoError(t, err)
				require.Nil(t, stored)
				return nil
			}))
		})
	}
}

func TestDatabaseTruncateRounds(t *testing.T) {
	for name, db := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Update(ctx, func(w StateWriter) error {
				for n := uint64(1); n <= 5; n++ {
					r := storedRound(n)
					r.RoundNumber = n
					if err := w.PutRound(r); err != nil {
						return err
					}
				}
				if err := w.DeleteRound(1); err != nil {
					return err
				}
				return w.TruncateRounds(4)
			}))

			require.NoError(t, db.View(ctx, func(r StateReader) error {
				for n := uint64(1); n <= 5; n++ {
					stored, err := r.Round(n)
					require.NoError(t, err)
					if n == 1 || n >= 4 {
						require.Nil(t, stored, "round %d", n)
					} else {
						require.NotNil(t, stored, "round %d", n)
						require.Equal(t, n, stored.RoundNumber)
					}
				}
				return nil
			}))
		})
	}
}

func TestDatabaseClearLatestTinyBlocks(t *testing.T) {
	for name, db := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Update(ctx, func(w StateWriter) error {
				return w.SetLatestPubkeyToTinyBlocksCount(&rawdb.LatestPubkeyToTinyBlocksCount{Pubkey: "a", BlocksCount: 1})
			}))
			require.NoError(t, db.Update(ctx, func(w StateWriter) error {
				return w.SetLatestPubkeyToTinyBlocksCount(nil)
			}))
			require.NoError(t, db.View(ctx, func(r StateReader) error {
				latest, err := r.LatestPubkeyToTinyBlocksCount()
				require.NoError(t, err)
				require.Nil(t, latest)
				return nil
			}))
		})
	}
}
