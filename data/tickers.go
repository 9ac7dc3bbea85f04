// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// in-memory ticker list used by symbol search; refreshed on a schedule from
// cmd/serve.go
var (
	tickerMu   sync.RWMutex
	tickerList []*Ticker
)

// LoadTickersFromDB refreshes the cached ticker list
func LoadTickersFromDB() error {
	ctx := context.Background()

	marketDB := NewMarketDB()
	tickers, err := marketDB.Tickers(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not refresh ticker list")
		return err
	}

	tickerMu.Lock()
	tickerList = tickers
	tickerMu.Unlock()

	log.Info().Int("NumTickers", len(tickers)).Msg("refreshed ticker list")
	return nil
}

// SearchTickers returns cached tickers whose symbol contains query
// (case-insensitive substring match)
func SearchTickers(query string) []*Ticker {
	query = strings.ToUpper(query)

	tickerMu.RLock()
	defer tickerMu.RUnlock()

	matches := make([]*Ticker, 0, 10)
	for _, t := range tickerList {
		if strings.Contains(t.Symbol, query) {
			matches = append(matches, t)
		}
	}
	return matches
}
