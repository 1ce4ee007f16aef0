// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package activity

import (
	"strings"
	"unicode"
)

// NormalizeStreet turns a street label into its index key: lowercased,
// whitespace runs become one underscore, everything else that is not a
// letter or digit is dropped. "  Main St. " becomes "main_st".
func NormalizeStreet(street string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(street)) {
		switch {
		case unicode.IsSpace(r) || r == '_':
			pendingSep = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
