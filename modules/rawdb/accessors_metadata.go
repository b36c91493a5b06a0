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
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/modules"
	"github.com/amazechain/aedpos/params"
	"github.com/amazechain/aedpos/utils"
	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/erigon-lib/common/cmp"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/erigon-lib/kv/mdbx"
	log2 "github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/semaphore"
)

// ReadChainConfig retrieves the consensus settings stored for the given chain.
func ReadChainConfig(db kv.Getter, chainName string) (*params.ChainConfig, error) {
	data, err := db.GetOne(modules.ChainConfig, modules.ConfigKey(chainName))
	if err != nil {
		return nil, fmt.Errorf("fetch ChainConfig from db ,error: %v", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var config params.ChainConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid chain config JSON err: %v", err)
	}
	return &config, nil
}

// WriteChainConfig writes the chain config settings to the database.
func WriteChainConfig(db kv.Putter, cfg *params.ChainConfig) error {
	if cfg == nil {
		return fmt.Errorf("invalid cfg")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		log.Error("Failed to JSON encode chain config", "err", err)
		return err
	}
	if err := db.Put(modules.ChainConfig, modules.ConfigKey(cfg.ChainName), data); err != nil {
		log.Error("Failed to store chain config", "err", err)
		return err
	}
	return nil
}

// OpenDatabase opens the mdbx database of the consensus state under path.
func OpenDatabase(path string) (kv.RwDB, error) {
	if err := utils.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	logger := log2.New()
	roTxsLimiter := semaphore.NewWeighted(int64(cmp.Max(32, runtime.GOMAXPROCS(-1)*8))) // 1 less than max to allow unlocking to happen

	modules.AEDPoSInit()
	kv.ChaindataTablesCfg = modules.AEDPoSTableCfg

	db, err := mdbx.NewMDBX(logger).
		WriteMergeThreshold(4 * 8192).
		Path(path).Label(kv.ChainDB).
		DBVerbosity(kv.DBVerbosityLvl(2)).RoTxsLimiter(roTxsLimiter).
		MapSize(8 * datasize.TB).
		Open()
	if err != nil {
		return nil, err
	}
	if err = db.Update(context.Background(), func(tx kv.RwTx) error {
		return params.SetVersion(tx, params.VersionKeyCreated)
	}); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewMemoryDatabase(tmpDir string) kv.RwDB {
	modules.AEDPoSInit()
	kv.ChaindataTablesCfg = modules.AEDPoSTableCfg
	return mdbx.NewMDBX(log2.New()).InMem(tmpDir).MustOpen()
}
