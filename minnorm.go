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
	"github.com/OpenPSG/beamform/forward"
	"github.com/OpenPSG/beamform/recording"
)

// DefaultSNR is the conventional amplitude signal-to-noise ratio assumed
// when regularizing a minimum-norm inverse.
const DefaultSNR = 3.0

// MinimumNormOptions configures the inverse operator derivation.
type MinimumNormOptions struct {
	// SNR sets the Tikhonov regularization via lambda^2 = 1/SNR^2.
	// Zero selects DefaultSNR.
	SNR float64

	// Rank is the noise covariance rank used for whitening. Zero
	// estimates the rank from the spectrum; an ambiguous spectrum is an
	// error so the caller can supply the rank explicitly.
	Rank int
}

// InverseOperator is a regularized minimum-norm inverse: a linear map from
// sensor data to source amplitude estimates. K is
// (sources * Components) x channels and includes the noise whitening.
type InverseOperator struct {
	K            *mat.Dense
	Components   int
	Positions    [][3]float64
	ChannelNames []string
	Reference    recording.Reference
	Lambda2      float64
}

// MinimumNorm derives a minimum-norm inverse operator from a forward
// operator and a noise covariance. The gains are whitened with the noise
// covariance, scaled so the mean squared singular value is one, and
// inverted with Tikhonov regularization lambda^2 = 1/SNR^2.
func MinimumNorm(op *forward.Operator, noise *cov.Matrix, opts MinimumNormOptions) (*InverseOperator, error) {
	if err := checkMatch(op, noise.Names, noise.Reference); err != nil {
		return nil, err
	}
	snr := opts.SNR
	if snr == 0 {
		snr = DefaultSNR
	}
	if snr < 0 {
		return nil, fmt.Errorf("negative SNR %v", snr)
	}
	lambda2 := 1 / (snr * snr)

	whitener, err := cov.NewWhitener(noise, opts.Rank)
	if err != nil {
		return nil, fmt.Errorf("building noise whitener: %w", err)
	}
	wg, err := whitener.Apply(op.Gain)
	if err != nil {
		return nil, fmt.Errorf("whitening forward gains: %w", err)
	}

	// Scale so the mean squared singular value of the whitened gain is 1,
	// putting lambda^2 on the conventional SNR scale.
	rows, cols := wg.Dims()
	p := rows
	if cols < p {
		p = cols
	}
	var scale float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := wg.At(i, j)
			scale += v * v
		}
	}
	scale /= float64(p)
	if scale <= 0 {
		return nil, fmt.Errorf("forward operator is all zeros")
	}
	root := math.Sqrt(scale)
	var gn mat.Dense
	gn.Scale(1/root, wg)

	var svd mat.SVD
	if !svd.Factorize(&gn, mat.SVDThin) {
		return nil, fmt.Errorf("SVD of whitened gain failed")
	}
	sigma := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// K = (1/root) V Gamma Ut W with Gamma_i = sigma_i/(sigma_i^2+lambda^2).
	gammaU := mat.NewDense(len(sigma), rows, nil)
	for i, s := range sigma {
		g := s / (s*s + lambda2)
		for j := 0; j < rows; j++ {
			gammaU.Set(i, j, g*u.At(j, i))
		}
	}
	var k mat.Dense
	k.Mul(&v, gammaU)
	var kw mat.Dense
	kw.Mul(&k, whitener.W)
	kw.Scale(1/root, &kw)

	return &InverseOperator{
		K:            &kw,
		Components:   op.Components,
		Positions:    op.Positions,
		ChannelNames: append([]string(nil), noise.Names...),
		Reference:    noise.Reference,
		Lambda2:      lambda2,
	}, nil
}

// Apply maps sensor data (channels x samples) to a source estimate.
func (inv *InverseOperator) Apply(data *mat.Dense, sampleRate, tmin float64) (*SourceEstimate, error) {
	rows, _ := data.Dims()
	if rows != len(inv.ChannelNames) {
		return nil, fmt.Errorf("inverse operator built for %d channels, data has %d: %w",
			len(inv.ChannelNames), rows, ErrChannelMismatch)
	}
	var est mat.Dense
	est.Mul(inv.K, data)
	return &SourceEstimate{
		Data:       &est,
		Components: inv.Components,
		Positions:  inv.Positions,
		SampleRate: sampleRate,
		TMin:       tmin,
	}, nil
}
