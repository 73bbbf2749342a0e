package replay

import (
	"testing"

	"github.com/dgranger/pathguide/pkg/core"
)

func TestBuffer_GrowAppendsActivePaths(t *testing.T) {
	b := NewBuffer()
	b.Grow(3, 1)
	if b.Len() != 3 {
		t.Fatalf("expected 3 path slots, got %d", b.Len())
	}
	for i := 0; i < 3; i++ {
		if !b.At(i).Active {
			t.Errorf("expected path %d to start active", i)
		}
	}
}

func TestRPath_DeactivateClearsRecords(t *testing.T) {
	p := NewRPath(0)
	p.Path = []RVertex{{O: core.NewVec3(0, 0, 0), Sc: 1}}
	p.RadianceRecords = []RadianceRecord{{VertexIndex: 0, L: core.NewVec3(1, 1, 1)}}

	p.Deactivate()
	if p.Active {
		t.Errorf("expected path to be inactive after Deactivate")
	}
	if p.Path != nil || p.RadianceRecords != nil {
		t.Errorf("expected Deactivate to drop retained records")
	}
}

func TestBuffer_ForEachActiveSkipsInactive(t *testing.T) {
	b := NewBuffer()
	b.Grow(2, 0)
	b.At(0).Deactivate()

	visited := 0
	b.ForEachActive(func(p *RPath) { visited++ })
	if visited != 1 {
		t.Errorf("expected exactly 1 active path visited, got %d", visited)
	}
}
