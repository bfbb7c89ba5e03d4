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

	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/cov"
	"github.com/OpenPSG/beamform/forward"
	"github.com/OpenPSG/beamform/recording"
)

// Orientation selects the output mode of a beamformer at each source
// location. The modes are mutually exclusive and chosen by the caller.
type Orientation int

const (
	// Vector keeps every orientation component of the forward operator,
	// typically three orthogonal amplitudes per location.
	Vector Orientation = iota

	// MaxPower reduces each location to a single amplitude along the
	// orientation that maximizes output power.
	MaxPower
)

// LCMVOptions configures the beamformer derivation.
type LCMVOptions struct {
	// Reg is the covariance inversion policy. The zero value applies no
	// regularization and fails on rank-deficient covariances unless
	// AllowRankDeficient is set.
	Reg Regularization

	// Orientation selects vector or max-power scalar output.
	Orientation Orientation

	// Whitener, when set, whitens the covariance and the forward gains
	// with a noise covariance before inversion. Required when combining
	// sensor types of different physical units. The whitener is folded
	// into the filter weights, so the filter still applies to raw data.
	Whitener *cov.Whitener

	// AllowRankDeficient permits a truncated pseudo-inverse fallback when
	// an unregularized covariance turns out to be rank-deficient. The
	// degradation is reported on Filter.Notes.
	AllowRankDeficient bool
}

// Filter is a spatial filter: applied to sensor data it yields source
// amplitude estimates. Weights is (sources * Components) x channels.
type Filter struct {
	Weights      *mat.Dense
	Components   int
	Positions    [][3]float64
	ChannelNames []string
	Reference    recording.Reference

	// Notes records caller-visible degradations accepted during the
	// derivation, e.g. a pseudo-inverse fallback.
	Notes []string
}

// LCMV derives a linearly constrained minimum-variance beamformer from a
// forward operator and a data covariance. The covariance must come from
// data in the operator's reference scheme and channel order.
func LCMV(op *forward.Operator, c *cov.Matrix, opts LCMVOptions) (*Filter, error) {
	if err := checkMatch(op, c.Names, c.Reference); err != nil {
		return nil, err
	}

	gain := op.Gain
	sym := c.Sym
	if opts.Whitener != nil {
		wc, err := opts.Whitener.ApplyCov(c)
		if err != nil {
			return nil, fmt.Errorf("whitening covariance: %w", err)
		}
		wg, err := opts.Whitener.Apply(op.Gain)
		if err != nil {
			return nil, fmt.Errorf("whitening forward gains: %w", err)
		}
		gain = wg
		sym = wc.Sym
	}

	cinv, notes, err := invertCov(sym, opts.Reg, opts.AllowRankDeficient)
	if err != nil {
		return nil, err
	}

	nch := sym.SymmetricDim()
	comps := op.Components
	outComps := comps
	if opts.Orientation == MaxPower {
		outComps = 1
	}

	weights := mat.NewDense(op.Sources()*outComps, nch, nil)
	for i := 0; i < op.Sources(); i++ {
		l := gain.Slice(0, nch, i*comps, (i+1)*comps).(*mat.Dense)

		// ct = Lt C^-1, s = Lt C^-1 L
		var ct mat.Dense
		ct.Mul(l.T(), cinv)
		var s mat.Dense
		s.Mul(&ct, l)

		switch {
		case opts.Orientation == MaxPower && comps > 1:
			u := minPowerOrientation(&s)
			var lo mat.VecDense
			lo.MulVec(l, u)
			w, err := scalarWeights(&lo, cinv)
			if err != nil {
				return nil, fmt.Errorf("source %d: %w", i, err)
			}
			weights.SetRow(i, w)

		case comps == 1:
			lo := mat.VecDenseCopyOf(l.ColView(0))
			w, err := scalarWeights(lo, cinv)
			if err != nil {
				return nil, fmt.Errorf("source %d: %w", i, err)
			}
			weights.SetRow(i, w)

		default: // vector output
			var sinv mat.Dense
			if err := sinv.Inverse(&s); err != nil {
				return nil, fmt.Errorf("source %d: %w", i, ErrSingularLeadfield)
			}
			var w mat.Dense
			w.Mul(&sinv, &ct)
			for r := 0; r < comps; r++ {
				weights.SetRow(i*comps+r, mat.Row(nil, r, &w))
			}
		}
	}

	if opts.Whitener != nil {
		// Fold the whitener in so the filter applies to raw sensor data.
		var raw mat.Dense
		raw.Mul(weights, opts.Whitener.W)
		weights = &raw
	}

	return &Filter{
		Weights:      weights,
		Components:   outComps,
		Positions:    op.Positions,
		ChannelNames: append([]string(nil), c.Names...),
		Reference:    c.Reference,
		Notes:        notes,
	}, nil
}

// minPowerOrientation returns the unit orientation minimizing ut S u for
// the 3x3 (or 2x2) matrix S = Lt C^-1 L. Beamformer output power along u
// is 1/(ut S u), so this is the max-power orientation.
func minPowerOrientation(s *mat.Dense) *mat.VecDense {
	n, _ := s.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (s.At(i, j)+s.At(j, i))/2)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		// Degenerate; fall back to the first axis.
		u := mat.NewVecDense(n, nil)
		u.SetVec(0, 1)
		return u
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Ascending eigenvalues: column 0 minimizes the quadratic form.
	return mat.VecDenseCopyOf(vecs.ColView(0))
}

// scalarWeights computes the unit-gain beamformer row for a single
// oriented leadfield: w = C^-1 l / (lt C^-1 l).
func scalarWeights(l *mat.VecDense, cinv *mat.Dense) ([]float64, error) {
	var cl mat.VecDense
	cl.MulVec(cinv, l)
	denom := mat.Dot(l, &cl)
	if denom <= 0 {
		return nil, ErrSingularLeadfield
	}
	w := make([]float64, l.Len())
	for i := range w {
		w[i] = cl.AtVec(i) / denom
	}
	return w, nil
}

// checkMatch validates reference scheme and channel order between a
// forward operator and data-derived inputs.
func checkMatch(op *forward.Operator, names []string, ref recording.Reference) error {
	if op.Reference != ref {
		return fmt.Errorf("data is %v referenced, forward operator is %v referenced: %w",
			ref, op.Reference, ErrReferenceMismatch)
	}
	if len(names) != op.Channels() {
		return fmt.Errorf("data has %d channels, forward operator has %d: %w",
			len(names), op.Channels(), ErrChannelMismatch)
	}
	for i, name := range op.ChannelNames {
		if names[i] != name {
			return fmt.Errorf("channel %d is %q in data but %q in forward operator: %w",
				i, names[i], name, ErrChannelMismatch)
		}
	}
	return nil
}

// Apply maps sensor data (channels x samples) through the filter. The
// sample rate and start time seed the resulting estimate's time base.
func (f *Filter) Apply(data *mat.Dense, sampleRate, tmin float64) (*SourceEstimate, error) {
	rows, _ := data.Dims()
	if rows != len(f.ChannelNames) {
		return nil, fmt.Errorf("filter built for %d channels, data has %d: %w",
			len(f.ChannelNames), rows, ErrChannelMismatch)
	}
	var est mat.Dense
	est.Mul(f.Weights, data)
	return &SourceEstimate{
		Data:       &est,
		Components: f.Components,
		Positions:  f.Positions,
		SampleRate: sampleRate,
		TMin:       tmin,
	}, nil
}

// ApplyRecording applies the filter to a recording after validating the
// channel set and reference scheme.
func (f *Filter) ApplyRecording(rec *recording.Recording) (*SourceEstimate, error) {
	if rec.Reference != f.Reference {
		return nil, fmt.Errorf("recording is %v referenced, filter expects %v: %w",
			rec.Reference, f.Reference, ErrReferenceMismatch)
	}
	names := rec.ChannelNames()
	for i, name := range f.ChannelNames {
		if i >= len(names) || names[i] != name {
			return nil, fmt.Errorf("recording channels do not match filter: %w", ErrChannelMismatch)
		}
	}
	return f.Apply(rec.Data, rec.SampleRate, 0)
}

// ApplyCov projects a covariance through the filter, returning estimated
// power per source location (summed over orientation components).
func (f *Filter) ApplyCov(c *cov.Matrix) ([]float64, error) {
	if c.Reference != f.Reference {
		return nil, fmt.Errorf("covariance is %v referenced, filter expects %v: %w",
			c.Reference, f.Reference, ErrReferenceMismatch)
	}
	if c.Dim() != len(f.ChannelNames) {
		return nil, fmt.Errorf("filter built for %d channels, covariance has %d: %w",
			len(f.ChannelNames), c.Dim(), ErrChannelMismatch)
	}
	for i, name := range f.ChannelNames {
		if c.Names[i] != name {
			return nil, fmt.Errorf("covariance channels do not match filter: %w", ErrChannelMismatch)
		}
	}

	var wc mat.Dense
	wc.Mul(f.Weights, c.Sym)
	var p mat.Dense
	p.Mul(&wc, f.Weights.T())

	power := make([]float64, len(f.Positions))
	for i := range power {
		for r := 0; r < f.Components; r++ {
			power[i] += p.At(i*f.Components+r, i*f.Components+r)
		}
	}
	return power, nil
}
