// Package dump implements the SD-tree binary dump format: a tightly packed,
// little-endian snapshot of the spatial tree's leaf wrappers, written after
// an iteration so external tools can inspect how the guiding distribution
// evolved.
package dump

import (
	"encoding/binary"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/sdtree"
)

// CameraToWorld wraps a 4x4 camera-to-world transform. gonum's mat.Dense
// gives the header assembly/validation (square, finite, row-major readout)
// a real linear-algebra type instead of a bare [16]float64.
type CameraToWorld struct {
	m *mat.Dense
}

// NewCameraToWorld validates rows as a 4x4 matrix and wraps it.
func NewCameraToWorld(rows [4][4]float64) (CameraToWorld, error) {
	flat := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			flat[i*4+j] = rows[i][j]
		}
	}
	m := mat.NewDense(4, 4, flat)
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return CameraToWorld{}, fmt.Errorf("dump: camera-to-world matrix must be 4x4, got %dx%d", r, c)
	}
	return CameraToWorld{m: m}, nil
}

// write writes the 16-float32 row-major header.
func (c CameraToWorld) write(w io.Writer) error {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if err := binary.Write(w, binary.LittleEndian, float32(c.m.At(i, j))); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteSDTree writes the full dump: the camera header followed by every
// leaf wrapper with positive statistical weight. I/O errors propagate to
// the caller with no retry, per the package's error-handling policy.
func WriteSDTree(w io.Writer, camera CameraToWorld, tree *sdtree.STree) error {
	if err := camera.write(w); err != nil {
		return fmt.Errorf("dump: writing camera header: %w", err)
	}

	var writeErr error
	tree.ForEachLeafVoxel(func(origin, size core.Vec3, wrapper *sdtree.DTreeWrapper) {
		if writeErr != nil || wrapper == nil || wrapper.StatisticalWeight() <= 0 {
			return
		}
		writeErr = writeWrapper(w, origin, size, wrapper)
	})
	if writeErr != nil {
		return fmt.Errorf("dump: writing wrapper: %w", writeErr)
	}
	return nil
}

func writeWrapper(w io.Writer, origin, size core.Vec3, wrapper *sdtree.DTreeWrapper) error {
	fields := []float32{
		float32(origin.X), float32(origin.Y), float32(origin.Z),
		float32(size.X), float32(size.Y), float32(size.Z),
		float32(wrapper.Mean()),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(wrapper.StatisticalWeight())); err != nil {
		return err
	}

	nodes := wrapper.Nodes()
	if err := binary.Write(w, binary.LittleEndian, uint64(len(nodes))); err != nil {
		return err
	}
	for i := range nodes {
		for j := 0; j < 4; j++ {
			if err := binary.Write(w, binary.LittleEndian, float32(nodes[i].SumAt(j))); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, nodes[i].ChildAt(j)); err != nil {
				return err
			}
		}
	}
	return nil
}
