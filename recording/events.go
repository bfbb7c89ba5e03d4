// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording

import (
	"fmt"
	"math"
)

// Event marks a stimulus onset: the sample index where a trigger channel
// rose from zero, and the integer code it rose to.
type Event struct {
	Sample int
	Code   int
}

// FindEvents scans the named trigger channel for rising edges. An event is
// emitted at each sample where the rounded channel value changes from zero
// to nonzero; the channel must return to zero before the next event.
func FindEvents(rec *Recording, channel string) ([]Event, error) {
	idx := rec.ChannelIndex(channel)
	if idx < 0 {
		return nil, fmt.Errorf("unknown trigger channel %q", channel)
	}

	var events []Event
	prev := 0
	for j := 0; j < rec.Samples(); j++ {
		code := int(math.Round(rec.Data.At(idx, j)))
		if code != 0 && prev == 0 {
			events = append(events, Event{Sample: j, Code: code})
		}
		prev = code
	}
	return events, nil
}
