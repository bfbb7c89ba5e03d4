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
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultTol bounds the numerically nonzero part of the spectrum:
	// values below s_max * DefaultTol count as zero.
	DefaultTol = 1e-12

	// DefaultCliffDecades is the drop between consecutive singular values,
	// in decades, that counts as a cliff.
	DefaultCliffDecades = 3.0
)

// AmbiguousRankError reports a singular-value spectrum with more than one
// plausible signal/noise boundary. Candidates holds every candidate rank
// in increasing order; the caller must pick one, typically from knowledge
// of the preprocessing that produced the data.
type AmbiguousRankError struct {
	Candidates []int
	Spectrum   []float64
}

func (e *AmbiguousRankError) Error() string {
	return fmt.Sprintf("ambiguous covariance rank, candidates %v", e.Candidates)
}

// SingularValues returns the spectrum of the covariance in descending
// order. For a symmetric PSD matrix these are its eigenvalue magnitudes.
func (m *Matrix) SingularValues() []float64 {
	var eig mat.EigenSym
	if !eig.Factorize(m.Sym, false) {
		return nil
	}
	s := eig.Values(nil)
	for i, v := range s {
		s[i] = math.Abs(v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(s)))
	return s
}

// EstimateRank estimates the effective numerical rank of the covariance
// from its singular-value spectrum. Zero tol or cliffDecades selects the
// defaults.
//
// Values below s_max*tol are degenerate; if the remaining spectrum decays
// smoothly the rank is simply its length. A cliff (a drop of cliffDecades
// decades between consecutive values) inside the remaining spectrum means
// heterogeneous channel scaling or partial preprocessing left more than
// one plausible boundary, and an *AmbiguousRankError carrying all
// candidate ranks is returned instead of a guess.
func EstimateRank(m *Matrix, tol, cliffDecades float64) (int, error) {
	if tol <= 0 {
		tol = DefaultTol
	}
	if cliffDecades <= 0 {
		cliffDecades = DefaultCliffDecades
	}

	s := m.SingularValues()
	if len(s) == 0 || s[0] == 0 {
		return 0, nil
	}

	floor := s[0] * tol
	above := 0
	for _, v := range s {
		if v > floor {
			above++
		}
	}

	var candidates []int
	for i := 0; i+1 < above; i++ {
		if math.Log10(s[i]/s[i+1]) >= cliffDecades {
			candidates = append(candidates, i+1)
		}
	}
	if len(candidates) == 0 {
		return above, nil
	}
	candidates = append(candidates, above)
	return 0, &AmbiguousRankError{Candidates: candidates, Spectrum: s}
}
