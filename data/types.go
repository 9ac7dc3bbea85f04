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

import "time"

// Ticker is a tradeable instrument; reference data maintained by the
// ingestion pipeline and read-only here
type Ticker struct {
	ID     int64  `json:"ticker_id"`
	Symbol string `json:"ticker_symbol"`
}

// PricePoint is a single end-of-day close for a ticker
type PricePoint struct {
	Symbol string    `json:"ticker_symbol"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close_price"`
}

// PriceStats summarizes the stored price history of a single ticker
type PriceStats struct {
	Symbol      string  `json:"ticker_symbol"`
	RecordCount int64   `json:"record_count"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	AvgPrice    float64 `json:"avg_price"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
}

// DatabaseStats summarizes the reference data as a whole
type DatabaseStats struct {
	TickerCount int64     `json:"ticker_count"`
	PriceCount  int64     `json:"price_record_count"`
	DateRange   DateRange `json:"date_range"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
