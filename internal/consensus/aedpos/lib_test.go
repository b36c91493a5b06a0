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
	"fmt"
	"testing"

	"github.com/amazechain/aedpos/common/round"
	"github.com/stretchr/testify/require"
)

func TestCalculateLastIrreversibleBlockHeight(t *testing.T) {
	var pubkeys []string
	for i := 0; i < 7; i++ {
		pubkeys = append(pubkeys, fmt.Sprintf("miner-%d", i))
	}

	tests := []struct {
		name   string
		mined  int
		silent int // leading miners that reported no implied height
		want   uint64
		found  bool
	}{
		{name: "below quorum", mined: 4},
		{name: "exact quorum", mined: 5, want: 20, found: true},
		{name: "everybody", mined: 7, want: 30, found: true},
		{name: "silent miners skipped", mined: 7, silent: 2, want: 40, found: true},
		{name: "too many silent miners", mined: 7, silent: 3},
		{name: "nobody", mined: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := round.GenerateFirstRound(pubkeys, testInterval, testStart)
			current := round.GenerateFirstRound(pubkeys, testInterval, testStart+8*testInterval)
			for i, pubkey := range pubkeys {
				if i >= tt.silent {
					previous.Miner(pubkey).ImpliedIrreversibleBlockHeight = uint64(10 * (i + 1))
				}
				if i < tt.mined {
					current.Miner(pubkey).SupposedOrderOfNextRound = uint32(i + 1)
				}
			}
			lib, found := CalculateLastIrreversibleBlockHeight(current, previous)
			require.Equal(t, tt.found, found)
			require.Equal(t, tt.want, lib)
		})
	}

	lib, found := CalculateLastIrreversibleBlockHeight(round.GenerateFirstRound(pubkeys, testInterval, testStart), round.NewRound(0, 0))
	require.False(t, found)
	require.Zero(t, lib)
}
