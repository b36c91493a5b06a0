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

package treasury

import (
	"testing"

	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/amazechain/aedpos/modules/rawdb"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type banList struct {
	mapset.Set[string]
}

func (b banList) IsBanned(pubkey string) bool { return b.Contains(pubkey) }

func TestWeights(t *testing.T) {
	summary := &aedpos.TermSummary{
		TermNumber: 1,
		ProducedBlocks: map[string]uint64{
			"a":  10,
			"b2": 4,
			"c2": 7,
			"d":  3,
			"e":  0,
		},
		Replacements: []aedpos.MinerReplacement{
			{OldPubkey: "b", NewPubkey: "b1"},
			{OldPubkey: "b1", NewPubkey: "b2"},
			{OldPubkey: "c", NewPubkey: "c2", IsEvil: true},
		},
	}
	weights := Weights(summary, banList{mapset.NewSet("d")})
	require.Equal(t, map[string]uint64{"a": 10, "b": 4, "c2": 7}, weights)

	weights = Weights(summary, nil)
	require.Equal(t, uint64(3), weights["d"])
}

func TestRecordTermSummary(t *testing.T) {
	db := rawdb.NewMemoryDatabase(t.TempDir())
	defer db.Close()
	tr := New(db, uint256.NewInt(100), nil)

	first := &aedpos.TermSummary{TermNumber: 1, ProducedBlocks: map[string]uint64{"a": 2, "b": 3}}
	require.NoError(t, tr.RecordTermSummary(first))
	require.ErrorIs(t, tr.RecordTermSummary(first), ErrTermRecorded)

	second := &aedpos.TermSummary{TermNumber: 2, ProducedBlocks: map[string]uint64{"a": 5}}
	require.NoError(t, tr.RecordTermSummary(second))

	entry, err := tr.TermReward(1)
	require.NoError(t, err)
	require.Len(t, entry, 2)
	require.Equal(t, uint64(200), entry["a"].Uint64())
	require.Equal(t, uint64(300), entry["b"].Uint64())

	entry, err = tr.TermReward(3)
	require.NoError(t, err)
	require.Nil(t, entry)

	balance, err := tr.AccountReward("a")
	require.NoError(t, err)
	require.Equal(t, uint64(700), balance.Uint64())
	balance, err = tr.AccountReward("nobody")
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}
