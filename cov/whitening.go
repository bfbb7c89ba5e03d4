// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cov

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Whitener is the inverse matrix square root of a noise covariance,
// restricted to its top-rank eigenspace. Applying it equalizes channels of
// heterogeneous physical units before inversion: W N Wt = I on the kept
// subspace.
type Whitener struct {
	W     *mat.Dense // rank x channels
	Names []string
	Rank  int
}

// NewWhitener builds a whitener from a noise covariance. A rank of zero
// estimates the rank from the spectrum; an ambiguous spectrum is returned
// as an error so the caller can supply the rank explicitly.
func NewWhitener(noise *Matrix, rank int) (*Whitener, error) {
	n := noise.Dim()
	if rank == 0 {
		var err error
		if rank, err = EstimateRank(noise, 0, 0); err != nil {
			return nil, fmt.Errorf("estimating noise covariance rank: %w", err)
		}
	}
	if rank < 1 || rank > n {
		return nil, fmt.Errorf("whitener rank %d out of range [1, %d]", rank, n)
	}

	var eig mat.EigenSym
	if !eig.Factorize(noise.Sym, true) {
		return nil, fmt.Errorf("noise covariance eigendecomposition failed")
	}
	vals := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	floor := vals[n-1] * DefaultTol
	w := mat.NewDense(rank, n, nil)
	for r := 0; r < rank; r++ {
		i := n - 1 - r // descending eigenvalue order
		if vals[i] <= floor {
			return nil, fmt.Errorf("noise covariance eigenvalue %d is numerically zero; rank %d too high", i, rank)
		}
		scale := 1 / math.Sqrt(vals[i])
		for c := 0; c < n; c++ {
			w.Set(r, c, vecs.At(c, i)*scale)
		}
	}

	return &Whitener{
		W:     w,
		Names: append([]string(nil), noise.Names...),
		Rank:  rank,
	}, nil
}

// Apply whitens a channels x anything matrix (sensor data or a forward
// gain), returning rank x anything.
func (w *Whitener) Apply(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if rows != len(w.Names) {
		return nil, fmt.Errorf("whitener built for %d channels, data has %d rows", len(w.Names), rows)
	}
	out := mat.NewDense(w.Rank, cols, nil)
	out.Mul(w.W, x)
	return out, nil
}

// ApplyCov whitens a covariance matrix: W C Wt.
func (w *Whitener) ApplyCov(m *Matrix) (*Matrix, error) {
	if m.Dim() != len(w.Names) {
		return nil, fmt.Errorf("whitener built for %d channels, covariance has %d", len(w.Names), m.Dim())
	}
	for i, name := range w.Names {
		if m.Names[i] != name {
			return nil, fmt.Errorf("whitener channel %q does not match covariance channel %q", name, m.Names[i])
		}
	}

	var wc mat.Dense
	wc.Mul(w.W, m.Sym)
	var full mat.Dense
	full.Mul(&wc, w.W.T())

	sym := mat.NewSymDense(w.Rank, nil)
	for i := 0; i < w.Rank; i++ {
		for j := i; j < w.Rank; j++ {
			sym.SetSym(i, j, (full.At(i, j)+full.At(j, i))/2)
		}
	}

	names := make([]string, w.Rank)
	for i := range names {
		names[i] = fmt.Sprintf("W%03d", i)
	}
	return &Matrix{
		Sym:       sym,
		Names:     names,
		Reference: m.Reference,
		N:         m.N,
		RankLoss:  0, // whitening truncates the degenerate subspace away
	}, nil
}
