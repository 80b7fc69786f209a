// Package pack models the unit of the WalB write-ahead log.
//
// A Pack is an ordered list of block writes that is logged, and later
// installed into the data area, as one atomic unit. Packs are numbered by
// PackId in log sequence order. A Group is a plug group: packs that were
// issued together before the submitter unplugged. Groups only carry the
// input's structure; ordering is decided by PackId alone.
package pack

import (
	"errors"
	"fmt"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/util"
)

type Write struct {
	Addr  common.Bnum
	Block disk.Block
}

func MkWrite(a common.Bnum, blk disk.Block) Write {
	w := Write{Addr: a, Block: blk}
	return w
}

type Pack struct {
	Id     common.PackId
	Writes []Write
}

// MkPack copies writes, so the caller may reuse its buffers.
func MkPack(id common.PackId, writes []Write) Pack {
	ws := make([]Write, len(writes))
	for i, w := range writes {
		ws[i] = MkWrite(w.Addr, util.CloneByteSlice(w.Block))
	}
	return Pack{Id: id, Writes: ws}
}

// Apply returns img with the pack's writes applied in order.
func (p Pack) Apply(img image.Image) image.Image {
	for _, w := range p.Writes {
		img = img.Write(w.Addr, w.Block)
	}
	return img
}

// Overlaps reports whether two writes in p target the same address.
func (p Pack) Overlaps() bool {
	seen := make(map[common.Bnum]bool)
	for _, w := range p.Writes {
		if seen[w.Addr] {
			return true
		}
		seen[w.Addr] = true
	}
	return false
}

func (p Pack) String() string {
	s := fmt.Sprintf("pack %d [", p.Id)
	for i, w := range p.Writes {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d:%q", w.Addr, w.Block)
	}
	return s + "]"
}

type Group []Pack

// Flatten concatenates groups into log order.
func Flatten(groups []Group) []Pack {
	var packs []Pack
	for _, g := range groups {
		packs = append(packs, g...)
	}
	return packs
}

var ErrPackId = errors.New("malformed pack id")

// Validate checks that packs are numbered 0, 1, 2, ... in order; duplicate,
// decreasing, or skipped ids are rejected with an error wrapping ErrPackId.
func Validate(packs []Pack) error {
	for i, p := range packs {
		if p.Id != common.PackId(i) {
			return fmt.Errorf("pack at position %d has id %d: %w", i, p.Id, ErrPackId)
		}
	}
	return nil
}
