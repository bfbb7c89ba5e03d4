// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package forward

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/beamform/recording"
)

// On-disk layout, little-endian throughout:
//
//	magic   "FWD1"
//	uint32  channel count
//	uint32  source count
//	uint32  components per source (1 or 3)
//	uint8   reference scheme
//	n x 16 bytes  space-padded channel labels
//	m x 3 float64 source positions
//	n x (m*components) float64 gain, row-major
const magic = "FWD1"

const labelWidth = 16

// Write serializes a forward operator.
func Write(w io.Writer, op *Operator) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	for _, v := range []uint32{uint32(op.Channels()), uint32(op.Sources()), uint32(op.Components)} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := bw.WriteByte(byte(op.Reference)); err != nil {
		return err
	}

	for _, name := range op.ChannelNames {
		if len(name) > labelWidth {
			return fmt.Errorf("channel label %q longer than %d bytes", name, labelWidth)
		}
		if _, err := fmt.Fprintf(bw, "%-*s", labelWidth, name); err != nil {
			return err
		}
	}

	for _, pos := range op.Positions {
		for _, v := range pos {
			if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
				return err
			}
		}
	}

	rows, cols := op.Gain.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if err := binary.Write(bw, binary.LittleEndian, op.Gain.At(i, j)); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Read deserializes a forward operator.
func Read(r io.Reader) (*Operator, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("error reading magic: %w", err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("not a forward operator file (magic %q)", head)
	}

	var counts [3]uint32
	for i := range counts {
		if err := binary.Read(br, binary.LittleEndian, &counts[i]); err != nil {
			return nil, fmt.Errorf("error reading counts: %w", err)
		}
	}
	n, m, components := int(counts[0]), int(counts[1]), int(counts[2])

	ref, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("error reading reference scheme: %w", err)
	}

	names := make([]string, n)
	label := make([]byte, labelWidth)
	for i := range names {
		if _, err := io.ReadFull(br, label); err != nil {
			return nil, fmt.Errorf("error reading channel labels: %w", err)
		}
		names[i] = strings.TrimRight(string(label), " ")
	}

	positions := make([][3]float64, m)
	for i := range positions {
		for j := range positions[i] {
			if err := binary.Read(br, binary.LittleEndian, &positions[i][j]); err != nil {
				return nil, fmt.Errorf("error reading source positions: %w", err)
			}
		}
	}

	data := make([]float64, n*m*components)
	if err := binary.Read(br, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("error reading gain matrix: %w", err)
	}

	return New(names, recording.Reference(ref), components, positions, mat.NewDense(n, m*components, data))
}
