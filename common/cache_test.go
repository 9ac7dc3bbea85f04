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

package common_test

import (
	"github.com/bigbird-vault/bb-api/common"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
)

var _ = Describe("Cache tests", func() {
	BeforeEach(func() {
		viper.Set("cache.redis", false)
		common.SetupCache()
	})

	Context("when deriving cache keys", func() {
		It("is stable for the same parts", func() {
			Expect(common.CacheKey("ticker-stats", "AAPL")).To(Equal(common.CacheKey("ticker-stats", "AAPL")))
		})

		It("differs when the parts differ", func() {
			Expect(common.CacheKey("ticker-stats", "AAPL")).NotTo(Equal(common.CacheKey("ticker-stats", "MSFT")))
		})

		It("does not collide on part boundaries", func() {
			Expect(common.CacheKey("ab", "c")).NotTo(Equal(common.CacheKey("a", "bc")))
		})
	})

	Context("when storing values", func() {
		It("round-trips a value through the local cache", func() {
			payload := []byte(`{"record_count":755}`)
			key := common.CacheKey("ticker-stats", "AAPL")
			Expect(common.CacheSet(key, payload)).To(Succeed())

			got, err := common.CacheGet(key)
			Expect(err).To(BeNil())
			Expect(got).To(Equal(payload))
		})

		It("misses for an unknown key", func() {
			_, err := common.CacheGet(common.CacheKey("ticker-stats", "ZZZZ"))
			Expect(err).To(Equal(common.ErrCacheMiss))
		})
	})
})

var _ = Describe("Compression tests", func() {
	It("round-trips data through lz4", func() {
		orig := []byte("the quick brown fox jumps over the lazy dog the quick brown fox")
		compressed, err := common.Compress(orig)
		Expect(err).To(BeNil())

		decompressed, err := common.Decompress(compressed)
		Expect(err).To(BeNil())
		Expect(decompressed).To(Equal(orig))
	})
})
