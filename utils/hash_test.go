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

package utils

import (
	"testing"

	"github.com/amazechain/aedpos/common/types"
)

func TestHashOfIsDeterministic(t *testing.T) {
	in := HashFromString("in-value")
	if HashOf(in) != HashOf(in) {
		t.Fatal("hash of the same input differs")
	}
	if HashOf(in) == in {
		t.Fatal("hash of input equals input")
	}
}

func TestXorAndCompute(t *testing.T) {
	a, b := HashFromString("a"), HashFromString("b")
	if XorAndCompute(a, b) != XorAndCompute(b, a) {
		t.Fatal("xor and compute is not commutative")
	}
	if XorAndCompute(a, types.EmptyHash) != HashOf(a) {
		t.Fatal("xor with the empty hash should reduce to a plain hash")
	}
}

func TestRlpHash(t *testing.T) {
	type pair struct {
		A uint64
		B string
	}
	h1 := RlpHash(&pair{1, "x"})
	h2 := RlpHash(&pair{1, "y"})
	if h1 == h2 {
		t.Fatal("distinct values share an rlp hash")
	}
	t.Logf("rlp hash : %s", h1.String())
}
