package tmc2209

import (
	"fmt"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

// Shadow holds the last known value of each register of one driver.
//
// Most TMC2209 configuration registers are write only, so the shadow is the only place their
// content can be read back from. It is owned by the caller and only changes on a write that
// reached the channel or on a read with a valid reply. Safe for concurrent use.
type Shadow struct {
	values *xsync.MapOf[hal.RegAddress, uint32]
}

func NewShadow() *Shadow {
	return &Shadow{values: xsync.NewMapOf[hal.RegAddress, uint32]()}
}

func (obj *Shadow) Load(reg hal.RegAddress) (uint32, bool) {
	return obj.values.Load(reg.Plain())
}

func (obj *Shadow) Store(reg hal.RegAddress, value uint32) {
	obj.values.Store(reg.Plain(), value)
}

func (obj *Shadow) Delete(reg hal.RegAddress) {
	obj.values.Delete(reg.Plain())
}

func (obj *Shadow) Len() int {
	return obj.values.Size()
}

// Snapshot returns a plain map copy of the current values.
func (obj *Shadow) Snapshot() map[hal.RegAddress]uint32 {
	out := make(map[hal.RegAddress]uint32, obj.values.Size())
	obj.values.Range(func(reg hal.RegAddress, value uint32) bool {
		out[reg] = value
		return true
	})
	return out
}

// Copy returns an independent shadow holding the same values.
func (obj *Shadow) Copy() *Shadow {
	cp := NewShadow()
	for reg, value := range obj.Snapshot() {
		cp.Store(reg, value)
	}
	return cp
}

// EqualTo reports whether both shadows hold the same registers with the same values.
func (obj *Shadow) EqualTo(other *Shadow) bool {
	a, b := obj.Snapshot(), other.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for reg, value := range a {
		if v, ok := b[reg]; !ok || v != value {
			return false
		}
	}
	return true
}

// String lists the shadowed registers in address order.
func (obj *Shadow) String() string {
	snapshot := obj.Snapshot()
	regs := make([]hal.RegAddress, 0, len(snapshot))
	for reg := range snapshot {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	var sb strings.Builder
	for _, reg := range regs {
		fmt.Fprintf(&sb, "\nREG [%s] %-12s 0x%08X", reg, RegisterName(reg), snapshot[reg])
	}
	return sb.String()
}
