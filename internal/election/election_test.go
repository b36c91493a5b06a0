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

package election

import (
	"testing"

	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, votes map[string]uint64) *Registry {
	r, err := NewRegistry(nil, []string{"i1", "i2", "i3"}, 3)
	require.NoError(t, err)
	for pubkey, v := range votes {
		require.NoError(t, r.AnnounceCandidate(pubkey))
		require.NoError(t, r.Vote(pubkey, v))
	}
	return r
}

func TestAnnounceAndVote(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.AnnounceCandidate("c1"))
	require.ErrorIs(t, r.AnnounceCandidate("c1"), ErrCandidateExists)
	require.ErrorIs(t, r.Vote("c2", 1), ErrUnknownCandidate)

	require.NoError(t, r.Vote("c1", 5))
	require.NoError(t, r.Vote("c1", 2))
	require.Equal(t, uint64(7), r.Candidate("c1").Votes)
	require.Nil(t, r.Candidate("c2"))

	r.MarkEvil("c3")
	require.True(t, r.IsBanned("c3"))
	require.ErrorIs(t, r.AnnounceCandidate("c3"), ErrBannedCandidate)
}

func TestGetVictories(t *testing.T) {
	r := newTestRegistry(t, nil)
	if victories := r.GetVictories([]string{"i1", "i2", "i3"}); victories != nil {
		t.Fatalf("victories without votes: have %v, want nil", victories)
	}

	r = newTestRegistry(t, map[string]uint64{"c1": 10, "c2": 30, "c3": 20, "c4": 30})
	require.Equal(t, []string{"c2", "c4", "c3"}, r.GetVictories([]string{"i1", "i2", "i3"}))

	// seats left over go to the current miners, then to the initial ones
	r = newTestRegistry(t, map[string]uint64{"c1": 10})
	require.Equal(t, []string{"c1", "x", "i1"}, r.GetVictories([]string{"x"}))

	r.MarkEvil("c1")
	r.MarkEvil("i1")
	require.Nil(t, r.GetVictories([]string{"x"}))
	r = newTestRegistry(t, map[string]uint64{"c1": 10, "c2": 5})
	r.MarkEvil("c1")
	r.MarkEvil("i1")
	require.Equal(t, []string{"c2", "x", "i2"}, r.GetVictories([]string{"x"}))
}

func TestGetMinerReplacementInformation(t *testing.T) {
	r := newTestRegistry(t, map[string]uint64{"c1": 10, "c2": 20, "m2": 50})
	current := []string{"m1", "m2", "m3", "i1"}

	evil, alternatives := r.GetMinerReplacementInformation(current)
	require.Empty(t, evil)
	require.Empty(t, alternatives)

	r.MarkEvil("m1")
	r.MarkEvil("m3")
	evil, alternatives = r.GetMinerReplacementInformation(current)
	require.Equal(t, []string{"m1", "m3"}, evil)
	// m2 already mines, so the best outside candidates win
	require.Equal(t, []string{"c2", "c1"}, alternatives)

	// initial miners outside the list fill up, banned ones never
	r.MarkEvil("c2")
	r.MarkEvil("i2")
	evil, alternatives = r.GetMinerReplacementInformation(current)
	require.Equal(t, []string{"m1", "m3"}, evil)
	require.Equal(t, []string{"c1", "i3"}, alternatives)

	// without enough alternatives the remaining evil miners stay
	r.MarkEvil("i3")
	evil, alternatives = r.GetMinerReplacementInformation(current)
	require.Equal(t, []string{"m1"}, evil)
	require.Equal(t, []string{"c1"}, alternatives)
}

func TestRecordMinerReplacement(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.RecordMinerReplacement("m1", "c1", 2, true)
	r.RecordMinerReplacement("m2", "c2", 2, false)

	require.Equal(t, []aedpos.MinerReplacement{
		{OldPubkey: "m1", NewPubkey: "c1", IsEvil: true},
		{OldPubkey: "m2", NewPubkey: "c2", IsEvil: false},
	}, r.Replacements(2))
	require.Empty(t, r.Replacements(1))
	require.Equal(t, "c1", r.Candidate("m1").ReplacedBy)

	r.SetMinerList(2, []string{"c1", "c2"})
	require.Equal(t, []string{"c1", "c2"}, r.MinerList(2))
}

func TestRegistryPersistence(t *testing.T) {
	db := rawdb.NewMemoryDatabase(t.TempDir())
	defer db.Close()

	r, err := NewRegistry(db, []string{"i1"}, 1)
	require.NoError(t, err)
	require.NoError(t, r.AnnounceCandidate("c1"))
	require.NoError(t, r.Vote("c1", 3))
	r.MarkEvil("m1")
	r.RecordMinerReplacement("m1", "c1", 1, true)

	reopened, err := NewRegistry(db, []string{"i1"}, 1)
	require.NoError(t, err)
	require.True(t, reopened.IsBanned("m1"))
	require.Equal(t, uint64(3), reopened.Candidate("c1").Votes)
	require.Equal(t, "c1", reopened.Candidate("m1").ReplacedBy)
	require.Equal(t, []string{"c1"}, reopened.GetVictories(nil))
}
