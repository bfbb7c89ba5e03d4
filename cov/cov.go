// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package cov estimates sensor covariance matrices and their numerical
// rank, and builds spatial whiteners from noise covariance estimates.
package cov

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/OpenPSG/beamform/recording"
)

// Matrix is an empirical channel covariance. It carries the channel names
// and reference scheme of the data it was estimated from, plus the degrees
// of freedom known to have been removed upstream (RankLoss), so downstream
// solvers can validate their inputs.
type Matrix struct {
	Sym       *mat.SymDense
	Names     []string
	Reference recording.Reference
	N         int // number of samples that entered the estimate
	RankLoss  int
}

// Dim returns the number of channels.
func (m *Matrix) Dim() int { return m.Sym.SymmetricDim() }

// Compute estimates the sample covariance of an epoch collection over the
// window [tmin, tmax] (seconds relative to the event). Each epoch is
// demeaned per channel over the window before accumulation.
func Compute(e *recording.Epochs, tmin, tmax float64) (*Matrix, error) {
	lo, err := e.SampleAt(tmin)
	if err != nil {
		return nil, err
	}
	hi, err := e.SampleAt(tmax)
	if err != nil {
		return nil, err
	}
	if hi <= lo {
		return nil, fmt.Errorf("empty covariance window [%v, %v]", tmin, tmax)
	}

	n := len(e.Channels)
	w := hi - lo + 1
	sum := mat.NewSymDense(n, nil)
	window := mat.NewDense(n, w, nil)

	for _, epoch := range e.Data {
		window.Copy(epoch.Slice(0, n, lo, hi+1))
		for i := 0; i < n; i++ {
			row := window.RawRowView(i)
			floats.AddConst(-floats.Sum(row)/float64(w), row)
		}
		sum.SymRankK(sum, 1, window)
	}

	total := e.Len() * w
	denom := total - e.Len() // one dof per epoch spent on the mean
	if denom < 1 {
		denom = 1
	}
	sum.ScaleSym(1/float64(denom), sum)

	return &Matrix{
		Sym:       sum,
		Names:     e.ChannelNames(),
		Reference: e.Reference,
		N:         total,
		RankLoss:  e.RankLoss,
	}, nil
}

// FromRecording estimates the covariance of continuous data, typically an
// empty-room or pre-stimulus noise segment.
func FromRecording(rec *recording.Recording) (*Matrix, error) {
	if rec.Samples() < 2 {
		return nil, fmt.Errorf("need at least 2 samples, have %d", rec.Samples())
	}
	n := len(rec.Channels)
	sym := mat.NewSymDense(n, nil)
	// Observations in rows, channels in columns.
	stat.CovarianceMatrix(sym, rec.Data.T(), nil)
	return &Matrix{
		Sym:       sym,
		Names:     rec.ChannelNames(),
		Reference: rec.Reference,
		N:         rec.Samples(),
		RankLoss:  rec.RankLoss,
	}, nil
}

// Pool averages covariances estimated from equal amounts of data into a
// single matrix. Callers are responsible for equal duration; the sample
// counts are checked.
func Pool(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("nothing to pool")
	}
	first := ms[0]
	sum := mat.NewSymDense(first.Dim(), nil)
	rankLoss := first.RankLoss
	total := 0
	for _, m := range ms {
		if m.Dim() != first.Dim() {
			return nil, fmt.Errorf("covariance dimension %d does not match %d", m.Dim(), first.Dim())
		}
		if m.N != first.N {
			return nil, fmt.Errorf("pooling requires equal-duration estimates: %d vs %d samples", m.N, first.N)
		}
		if m.Reference != first.Reference {
			return nil, fmt.Errorf("pooling across reference schemes %v and %v", m.Reference, first.Reference)
		}
		sum.AddSym(sum, m.Sym)
		if m.RankLoss > rankLoss {
			rankLoss = m.RankLoss
		}
		total += m.N
	}
	sum.ScaleSym(1/float64(len(ms)), sum)
	return &Matrix{
		Sym:       sum,
		Names:     append([]string(nil), first.Names...),
		Reference: first.Reference,
		N:         total,
		RankLoss:  rankLoss,
	}, nil
}
