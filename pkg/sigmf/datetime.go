// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sigmf

import (
	"regexp"
	"strconv"
	"time"
)

var datetimeRegex = regexp.MustCompile(
	`(\d{4})-(\d\d)-(\d\d)T(\d\d):(\d\d):(\d\d)(\.\d+)?(([+-]\d\d:\d\d)|Z)?`)

// ParseDatetime leniently parses an ISO-8601 like timestamp into
// milliseconds since the Unix epoch. Any timezone suffix is ignored
// and the time is assumed to be UTC. Fractional seconds of any width
// are accepted. ok is false and now is used if the string can't be parsed.
func ParseDatetime(s string, now time.Time) (uint64, bool) {
	match := datetimeRegex.FindStringSubmatch(s)
	if match == nil {
		return unixMillis(now, 0), false
	}

	t, err := time.Parse("2006-01-02T15:04:05",
		match[1]+"-"+match[2]+"-"+match[3]+"T"+match[4]+":"+match[5]+":"+match[6])
	if err != nil {
		return unixMillis(now, 0), false
	}

	var fraction float64
	if match[7] != "" {
		fraction, _ = strconv.ParseFloat(match[7], 64)
	}
	return unixMillis(t, fraction), true
}

func unixMillis(t time.Time, fraction float64) uint64 {
	ms := t.Unix()*1000 + int64(fraction*1000)
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
