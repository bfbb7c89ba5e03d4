// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package beamform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SourceEstimate is estimated source activity over time. Data is
// (sources * Components) x samples; the rows of source i are the block
// [i*Components, (i+1)*Components).
type SourceEstimate struct {
	Data       *mat.Dense
	Components int
	Positions  [][3]float64
	SampleRate float64
	TMin       float64 // time of the first sample, seconds
}

// Sources returns the number of source locations.
func (s *SourceEstimate) Sources() int { return len(s.Positions) }

// TimeAt returns the time of sample j in seconds.
func (s *SourceEstimate) TimeAt(j int) float64 {
	return s.TMin + float64(j)/s.SampleRate
}

// Magnitude collapses the estimate to one amplitude per source location:
// the vector norm across orientation components (a copy of the data when
// Components is 1).
func (s *SourceEstimate) Magnitude() *mat.Dense {
	_, cols := s.Data.Dims()
	out := mat.NewDense(s.Sources(), cols, nil)
	for i := 0; i < s.Sources(); i++ {
		for j := 0; j < cols; j++ {
			var sum float64
			for c := 0; c < s.Components; c++ {
				v := s.Data.At(i*s.Components+c, j)
				sum += v * v
			}
			out.Set(i, j, math.Sqrt(sum))
		}
	}
	return out
}

// Peak returns the source location and time of the largest amplitude
// magnitude.
func (s *SourceEstimate) Peak() (source int, t float64, value float64) {
	magnitude := s.Magnitude()
	rows, cols := magnitude.Dims()
	best := math.Inf(-1)
	bestJ := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := magnitude.At(i, j); v > best {
				best, source, bestJ = v, i, j
			}
		}
	}
	return source, s.TimeAt(bestJ), best
}
