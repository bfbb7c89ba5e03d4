// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package forward holds precomputed forward operators: linear maps from
// candidate source locations to predicted sensor measurements. The package
// deliberately does not compute forward models (boundary-element modeling,
// source-space tessellation); it loads operators produced elsewhere and
// checks that they match the data they are used with.
package forward

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/recording"
)

// Operator maps source activity to sensor measurements. Gain is channels x
// (sources * Components); the columns of source i are the block
// [i*Components, (i+1)*Components). An operator is only valid for data in
// the reference scheme it was computed for.
type Operator struct {
	ChannelNames []string
	Reference    recording.Reference
	Components   int          // 1 (fixed orientation) or 3 (free orientation)
	Positions    [][3]float64 // source locations in head coordinates, meters
	Gain         *mat.Dense
}

// New validates the pieces of a forward operator.
func New(names []string, ref recording.Reference, components int, positions [][3]float64, gain *mat.Dense) (*Operator, error) {
	if components != 1 && components != 3 {
		return nil, fmt.Errorf("forward operator must have 1 or 3 components per source, got %d", components)
	}
	rows, cols := gain.Dims()
	if rows != len(names) {
		return nil, fmt.Errorf("gain has %d rows for %d channels", rows, len(names))
	}
	if cols != len(positions)*components {
		return nil, fmt.Errorf("gain has %d columns for %d sources with %d components",
			cols, len(positions), components)
	}
	return &Operator{
		ChannelNames: names,
		Reference:    ref,
		Components:   components,
		Positions:    positions,
		Gain:         gain,
	}, nil
}

// Sources returns the number of candidate source locations.
func (op *Operator) Sources() int { return len(op.Positions) }

// Channels returns the number of sensor channels.
func (op *Operator) Channels() int { return len(op.ChannelNames) }

// SourceGain returns the gain block of source i, channels x Components.
func (op *Operator) SourceGain(i int) mat.Matrix {
	rows, _ := op.Gain.Dims()
	return op.Gain.Slice(0, rows, i*op.Components, (i+1)*op.Components)
}

// Pick returns a derived operator restricted to the named channels, in the
// given order, so the gain rows line up with a recording's channel set.
func (op *Operator) Pick(names []string) (*Operator, error) {
	index := make(map[string]int, len(op.ChannelNames))
	for i, name := range op.ChannelNames {
		index[name] = i
	}

	_, cols := op.Gain.Dims()
	gain := mat.NewDense(len(names), cols, nil)
	for i, name := range names {
		idx, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("forward operator has no channel %q", name)
		}
		gain.SetRow(i, mat.Row(nil, idx, op.Gain))
	}

	return &Operator{
		ChannelNames: append([]string(nil), names...),
		Reference:    op.Reference,
		Components:   op.Components,
		Positions:    op.Positions,
		Gain:         gain,
	}, nil
}
