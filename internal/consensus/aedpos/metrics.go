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

import "github.com/rcrowley/go-metrics"

var (
	processedBlocksMeter   = metrics.GetOrRegisterMeter("aedpos/blocks/processed", nil)
	tinyBlocksMeter        = metrics.GetOrRegisterMeter("aedpos/blocks/tiny", nil)
	validationFailureMeter = metrics.GetOrRegisterMeter("aedpos/validation/failures", nil)
	staleRoundMeter        = metrics.GetOrRegisterMeter("aedpos/validation/stale", nil)

	roundsCounter       = metrics.GetOrRegisterCounter("aedpos/rounds", nil)
	termsCounter        = metrics.GetOrRegisterCounter("aedpos/terms", nil)
	evilMinersCounter   = metrics.GetOrRegisterCounter("aedpos/miners/evil", nil)
	replacementsCounter = metrics.GetOrRegisterCounter("aedpos/miners/replaced", nil)
	revealedCounter     = metrics.GetOrRegisterCounter("aedpos/secrets/revealed", nil)

	libHeightGauge   = metrics.GetOrRegisterGauge("aedpos/lib/height", nil)
	libDistanceGauge = metrics.GetOrRegisterGauge("aedpos/lib/distance", nil)
	roundNumberGauge = metrics.GetOrRegisterGauge("aedpos/round", nil)
)
