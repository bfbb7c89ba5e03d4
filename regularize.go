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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/cov"
)

// DefaultLambda is the conventional diagonal-loading fraction: 5% of the
// average channel power.
const DefaultLambda = 0.05

// Regularization selects how a possibly rank-deficient covariance is
// inverted. Exactly one policy may be active:
//
//   - Lambda > 0: diagonal loading. Lambda times the average channel power
//     is added to the diagonal before inversion. Trades spatial resolution
//     for numerical stability.
//   - Rank > 0: truncated pseudo-inverse. Inversion is restricted to the
//     subspace of the top-Rank eigenvectors. Sharper, but the rank must be
//     right; estimate it with cov.EstimateRank or from known
//     preprocessing.
//
// The zero value applies no regularization, which fails on rank-deficient
// covariances.
type Regularization struct {
	Lambda float64
	Rank   int
}

// DiagonalLoading returns a diagonal-loading policy.
func DiagonalLoading(lambda float64) Regularization { return Regularization{Lambda: lambda} }

// TruncatedRank returns a truncated pseudo-inverse policy.
func TruncatedRank(rank int) Regularization { return Regularization{Rank: rank} }

// invertCov inverts a covariance under the given policy. When no policy is
// set and the matrix is numerically singular, it either fails with
// ErrSingularCovariance or, if fallback is allowed, degrades to a
// truncated pseudo-inverse at the detected rank and reports that in the
// returned notes.
func invertCov(sym *mat.SymDense, reg Regularization, allowFallback bool) (*mat.Dense, []string, error) {
	if reg.Lambda > 0 && reg.Rank > 0 {
		return nil, nil, fmt.Errorf("diagonal loading and truncated pseudo-inverse are mutually exclusive")
	}
	if reg.Lambda < 0 {
		return nil, nil, fmt.Errorf("negative loading factor %v", reg.Lambda)
	}
	n := sym.SymmetricDim()

	if reg.Lambda > 0 {
		load := reg.Lambda * mat.Trace(sym) / float64(n)
		loaded := mat.NewSymDense(n, nil)
		loaded.CopySym(sym)
		for i := 0; i < n; i++ {
			loaded.SetSym(i, i, loaded.At(i, i)+load)
		}
		var inv mat.Dense
		if err := inv.Inverse(loaded); err != nil {
			return nil, nil, fmt.Errorf("inverting loaded covariance: %w", ErrSingularCovariance)
		}
		return &inv, nil, nil
	}

	if reg.Rank > 0 {
		inv, err := truncatedInverse(sym, reg.Rank)
		if err != nil {
			return nil, nil, err
		}
		return inv, nil, nil
	}

	// No regularization requested: refuse to silently invert a
	// rank-deficient matrix.
	rank, _ := numericalRank(sym)
	if rank < n {
		if !allowFallback {
			return nil, nil, fmt.Errorf("covariance has rank %d of %d and no regularization: %w",
				rank, n, ErrSingularCovariance)
		}
		inv, err := truncatedInverse(sym, rank)
		if err != nil {
			return nil, nil, err
		}
		note := fmt.Sprintf("covariance rank %d of %d: fell back to truncated pseudo-inverse", rank, n)
		return inv, []string{note}, nil
	}

	var inv mat.Dense
	if err := inv.Inverse(sym); err != nil {
		return nil, nil, fmt.Errorf("inverting covariance: %w", ErrSingularCovariance)
	}
	return &inv, nil, nil
}

// truncatedInverse inverts sym on the subspace of its top-rank
// eigenvectors and projects back to full space.
func truncatedInverse(sym *mat.SymDense, rank int) (*mat.Dense, error) {
	n := sym.SymmetricDim()
	if rank < 1 || rank > n {
		return nil, fmt.Errorf("truncation rank %d out of range [1, %d]", rank, n)
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, fmt.Errorf("covariance eigendecomposition failed: %w", ErrSingularCovariance)
	}
	vals := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	floor := vals[n-1] * cov.DefaultTol
	inv := mat.NewDense(n, n, nil)
	for r := 0; r < rank; r++ {
		i := n - 1 - r
		if vals[i] <= floor {
			return nil, fmt.Errorf("eigenvalue %d of %d is numerically zero at truncation rank %d: %w",
				i, n, rank, ErrSingularCovariance)
		}
		q := vecs.ColView(i)
		scale := 1 / vals[i]
		for a := 0; a < n; a++ {
			qa := q.AtVec(a) * scale
			for b := 0; b < n; b++ {
				inv.Set(a, b, inv.At(a, b)+qa*q.AtVec(b))
			}
		}
	}
	return inv, nil
}

// numericalRank counts eigenvalues above the numerical floor.
func numericalRank(sym *mat.SymDense) (rank int, max float64) {
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return 0, 0
	}
	vals := eig.Values(nil)
	for _, v := range vals {
		if math.Abs(v) > max {
			max = math.Abs(v)
		}
	}
	floor := max * cov.DefaultTol
	for _, v := range vals {
		if v > floor {
			rank++
		}
	}
	return rank, max
}
