// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package recording holds multichannel sensor recordings and the
// operations that carve them up for source analysis: channel selection,
// re-referencing, event detection and epoch segmentation. Recordings are
// immutable once loaded; every transform returns a derived copy.
package recording

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ChannelKind identifies the physical sensor behind a channel.
type ChannelKind int

const (
	EEG ChannelKind = iota // scalp electrode
	Magnetometer
	Gradiometer
	Trigger // stimulus/status channel carrying integer event codes
	Misc
)

func (k ChannelKind) String() string {
	switch k {
	case EEG:
		return "eeg"
	case Magnetometer:
		return "mag"
	case Gradiometer:
		return "grad"
	case Trigger:
		return "trigger"
	default:
		return "misc"
	}
}

// Reference identifies the reference scheme of a recording. A forward
// operator is only valid for data in the reference scheme it was computed
// for, so the scheme travels with every entity derived from the data.
type Reference int

const (
	RefRecorded Reference = iota // as recorded by the amplifier
	RefAverage                   // EEG average reference
)

func (r Reference) String() string {
	switch r {
	case RefAverage:
		return "average"
	default:
		return "recorded"
	}
}

// Channel describes a single sensor.
type Channel struct {
	Name     string
	Kind     ChannelKind
	Unit     string     // physical dimension, e.g. uV or fT
	Position [3]float64 // sensor location in head coordinates, meters
}

// Recording is a multichannel sensor time series. Data is channels x
// samples. RankLoss counts the degrees of freedom removed from the data by
// referencing or prior cleaning; it is carried forward so covariance rank
// expectations can be checked downstream.
type Recording struct {
	Channels   []Channel
	SampleRate float64
	Reference  Reference
	RankLoss   int
	Data       *mat.Dense
}

// New validates channel metadata against the data matrix and wraps them in
// a Recording with the as-recorded reference scheme.
func New(channels []Channel, sampleRate float64, data *mat.Dense) (*Recording, error) {
	rows, _ := data.Dims()
	if rows != len(channels) {
		return nil, fmt.Errorf("channel count %d does not match data rows %d", len(channels), rows)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %v", sampleRate)
	}
	return &Recording{
		Channels:   channels,
		SampleRate: sampleRate,
		Data:       data,
	}, nil
}

// Samples returns the number of samples per channel.
func (rec *Recording) Samples() int {
	_, cols := rec.Data.Dims()
	return cols
}

// ChannelNames returns the channel names in data order.
func (rec *Recording) ChannelNames() []string {
	names := make([]string, len(rec.Channels))
	for i, ch := range rec.Channels {
		names[i] = ch.Name
	}
	return names
}

// ChannelIndex returns the index of the named channel, or -1.
func (rec *Recording) ChannelIndex(name string) int {
	for i, ch := range rec.Channels {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

// Pick returns a derived recording restricted to the named channels, in
// the given order.
func (rec *Recording) Pick(names []string) (*Recording, error) {
	_, cols := rec.Data.Dims()
	channels := make([]Channel, 0, len(names))
	data := mat.NewDense(len(names), cols, nil)
	for i, name := range names {
		idx := rec.ChannelIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("unknown channel %q", name)
		}
		channels = append(channels, rec.Channels[idx])
		data.SetRow(i, mat.Row(nil, idx, rec.Data))
	}
	return &Recording{
		Channels:   channels,
		SampleRate: rec.SampleRate,
		Reference:  rec.Reference,
		RankLoss:   rec.RankLoss,
		Data:       data,
	}, nil
}

// PickKind returns a derived recording restricted to channels of the given
// kinds, preserving data order.
func (rec *Recording) PickKind(kinds ...ChannelKind) (*Recording, error) {
	var names []string
	for _, ch := range rec.Channels {
		for _, k := range kinds {
			if ch.Kind == k {
				names = append(names, ch.Name)
				break
			}
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no channels of the requested kinds")
	}
	return rec.Pick(names)
}

// SetAverageReference returns a derived recording with the EEG channels
// re-referenced to their instantaneous mean. The transform removes one
// degree of freedom from the EEG data, which is recorded in RankLoss.
func (rec *Recording) SetAverageReference() (*Recording, error) {
	if rec.Reference == RefAverage {
		return rec, nil
	}

	var eeg []int
	for i, ch := range rec.Channels {
		if ch.Kind == EEG {
			eeg = append(eeg, i)
		}
	}
	if len(eeg) < 2 {
		return nil, fmt.Errorf("average reference requires at least 2 EEG channels, have %d", len(eeg))
	}

	rows, cols := rec.Data.Dims()
	data := mat.NewDense(rows, cols, nil)
	data.Copy(rec.Data)
	for j := 0; j < cols; j++ {
		var mean float64
		for _, i := range eeg {
			mean += data.At(i, j)
		}
		mean /= float64(len(eeg))
		for _, i := range eeg {
			data.Set(i, j, data.At(i, j)-mean)
		}
	}

	channels := make([]Channel, len(rec.Channels))
	copy(channels, rec.Channels)

	return &Recording{
		Channels:   channels,
		SampleRate: rec.SampleRate,
		Reference:  RefAverage,
		RankLoss:   rec.RankLoss + 1,
		Data:       data,
	}, nil
}
