/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pseudo mints pronounceable participant pseudonyms with trailing check letters,
// like "BUKAF-ODRIZ".
package pseudo

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultLength is the number of identifier letters.
	DefaultLength = 7
	// DefaultSplit is the group size of the printed pseudonym.
	DefaultSplit = 5
	// DefaultCheck is the number of check letters.
	DefaultCheck = 3

	vowels     = "AEIOU"
	consonants = "BCDFGHKLMNPRSTVWZ"
)

// Encode spells n as alternating consonants and vowels, least significant first. An odd off
// starts with a vowel.
func Encode(n *big.Int, off int) string {
	var (
		sb  strings.Builder
		i   = new(big.Int).Set(n)
		mod = new(big.Int)
		lc  = big.NewInt(int64(len(consonants)))
		lv  = big.NewInt(int64(len(vowels)))
	)
	for j := off; i.Sign() > 0; j++ {
		if j%2 == 0 {
			i.DivMod(i, lc, mod)
			sb.WriteByte(consonants[mod.Int64()])
		} else {
			i.DivMod(i, lv, mod)
			sb.WriteByte(vowels[mod.Int64()])
		}
	}
	return sb.String()
}

// Check returns the first n letters of the encoded sha256 of s.
func Check(s string, n, off int) string {
	sum := sha256.Sum256([]byte(s))
	enc := Encode(new(big.Int).SetBytes(sum[:]), off)
	if len(enc) > n {
		enc = enc[:n]
	}
	return enc
}

// Verify reports whether the trailing check letters of pseudonym match, which catches most
// typos.
func Verify(pseudonym string, check int) bool {
	uid := strings.ToUpper(strings.Replace(pseudonym, "-", "", -1))
	n := len(uid) - check
	if n <= 0 || check <= 0 {
		return false
	}
	return Check(uid[:n], check, n%2) == uid[n:]
}

// New returns a random pseudonym of length identifier letters and check letters, grouped by
// split.
func New(length, split, check int) (pseudonym string, err error) {
	if length <= 0 || split <= 0 || check <= 0 {
		return "", errors.Errorf("invalid pseudonym shape %d/%d/%d", length, split, check)
	}
	uid, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 256))
	if err != nil {
		return "", errors.Wrap(err, "read random failed")
	}
	id := Check(fmt.Sprintf("%x", uid), length, 0)
	full := id + Check(id, check, length%2)

	groups := make([]string, 0, len(full)/split+1)
	for i := 0; i < len(full); i += split {
		end := i + split
		if end > len(full) {
			end = len(full)
		}
		groups = append(groups, full[i:end])
	}
	return strings.Join(groups, "-"), nil
}

// Get returns a random pseudonym of the default shape.
func Get() (string, error) {
	return New(DefaultLength, DefaultSplit, DefaultCheck)
}
