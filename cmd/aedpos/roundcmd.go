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

package main

import (
	"fmt"
	"strconv"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/urfave/cli/v2"
)

var roundCommand = &cli.Command{
	Name:      "round",
	Usage:     "Print a stored round",
	ArgsUsage: "[roundNumber]",
	Action:    printRound,
	Description: `
The round command prints a round of the chain stored in the data dir, the
current round when no number is given.`,
}

func printRound(ctx *cli.Context) error {
	if err := setup(); err != nil {
		return err
	}
	var number uint64
	if arg := ctx.Args().First(); arg != "" {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid round number %q: %w", arg, err)
		}
		number = n
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		rd   *round.Round
		term uint64
	)
	err = aedpos.NewKVDatabase(db).View(ctx.Context, func(r aedpos.StateReader) (err error) {
		if number == 0 {
			if number, err = r.CurrentRoundNumber(); err != nil {
				return err
			}
		}
		if term, err = r.CurrentTermNumber(); err != nil {
			return err
		}
		rd, err = r.Round(number)
		return err
	})
	if err != nil {
		return err
	}
	if rd == nil {
		return fmt.Errorf("%w: %d", aedpos.ErrUnknownRound, number)
	}
	fmt.Printf("current term %d\n", term)
	fmt.Print(rd)
	return nil
}
