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

package metrics

import (
	"fmt"
	"net/http"

	"github.com/amazechain/aedpos/log"
	"github.com/rcrowley/go-metrics"
	"github.com/rcrowley/go-metrics/exp"
)

// Handler serves the metrics of r as expvar json.
func Handler(r metrics.Registry) http.Handler {
	return exp.ExpHandler(r)
}

// Setup starts a dedicated metrics server at the given address exposing the
// default registry.
func Setup(address string, log log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", Handler(metrics.DefaultRegistry))

	server := &http.Server{
		Addr:    address,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failure in running metrics server", "err", err)
		}
	}()

	log.Info("Enabling metrics export", "path", fmt.Sprintf("http://%s/debug/metrics", address))

	return server
}
