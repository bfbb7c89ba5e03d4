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

	"gonum.org/v1/gonum/mat"
)

// Epochs is a collection of fixed-length windows cut around events. All
// epochs share one channel set and one time base: sample i of every epoch
// lies at TMin + i/SampleRate seconds relative to its event.
type Epochs struct {
	Channels   []Channel
	SampleRate float64
	Reference  Reference
	RankLoss   int
	TMin       float64
	Codes      []int        // event code per epoch
	Data       []*mat.Dense // per epoch, channels x samples
}

// Segment cuts a window [tmin, tmax] (seconds relative to the event
// sample) around every event whose code is in codes. Events whose window
// would fall outside the recording are dropped. An empty codes slice
// selects every event.
func Segment(rec *Recording, events []Event, codes []int, tmin, tmax float64) (*Epochs, error) {
	if tmax <= tmin {
		return nil, fmt.Errorf("invalid window [%v, %v]", tmin, tmax)
	}

	wanted := make(map[int]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	rows := len(rec.Channels)
	first := int(math.Round(tmin * rec.SampleRate))
	length := int(math.Round((tmax-tmin)*rec.SampleRate)) + 1

	e := &Epochs{
		Channels:   append([]Channel(nil), rec.Channels...),
		SampleRate: rec.SampleRate,
		Reference:  rec.Reference,
		RankLoss:   rec.RankLoss,
		TMin:       float64(first) / rec.SampleRate,
	}

	for _, ev := range events {
		if len(codes) > 0 && !wanted[ev.Code] {
			continue
		}
		start := ev.Sample + first
		if start < 0 || start+length > rec.Samples() {
			continue
		}
		epoch := mat.NewDense(rows, length, nil)
		epoch.Copy(rec.Data.Slice(0, rows, start, start+length))
		e.Data = append(e.Data, epoch)
		e.Codes = append(e.Codes, ev.Code)
	}

	if len(e.Data) == 0 {
		return nil, fmt.Errorf("no epochs for codes %v in window [%v, %v]", codes, tmin, tmax)
	}
	return e, nil
}

// Len returns the number of epochs.
func (e *Epochs) Len() int { return len(e.Data) }

// SampleCount returns the number of samples per epoch.
func (e *Epochs) SampleCount() int {
	_, cols := e.Data[0].Dims()
	return cols
}

// ChannelNames returns the channel names in data order.
func (e *Epochs) ChannelNames() []string {
	names := make([]string, len(e.Channels))
	for i, ch := range e.Channels {
		names[i] = ch.Name
	}
	return names
}

// SampleAt maps a time (seconds relative to the event) onto the shared
// time base.
func (e *Epochs) SampleAt(t float64) (int, error) {
	i := int(math.Round((t - e.TMin) * e.SampleRate))
	if i < 0 || i >= e.SampleCount() {
		return 0, fmt.Errorf("time %v outside epoch window [%v, %v]",
			t, e.TMin, e.TMin+float64(e.SampleCount()-1)/e.SampleRate)
	}
	return i, nil
}

// Subset returns the first n epochs, sharing the underlying data.
func (e *Epochs) Subset(n int) (*Epochs, error) {
	if n < 1 || n > len(e.Data) {
		return nil, fmt.Errorf("subset of %d epochs from %d", n, len(e.Data))
	}
	sub := *e
	sub.Codes = e.Codes[:n]
	sub.Data = e.Data[:n]
	return &sub, nil
}

// Average returns the trial-averaged (evoked) response, channels x samples.
func (e *Epochs) Average() *mat.Dense {
	rows, cols := e.Data[0].Dims()
	avg := mat.NewDense(rows, cols, nil)
	for _, epoch := range e.Data {
		avg.Add(avg, epoch)
	}
	avg.Scale(1/float64(len(e.Data)), avg)
	return avg
}
