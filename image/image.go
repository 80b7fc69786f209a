// Package image implements DiskImage, an immutable snapshot of a block
// address space.
//
// An Image maps block addresses to opaque payloads. Addresses that were never
// written read as the default (empty) payload, and writing an empty payload is
// indistinguishable from never writing the address. Images are values: Write
// returns a new image and leaves the receiver untouched, so a caller that
// wants to advance its view replaces its copy with the result.
package image

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/util"
)

type Image struct {
	blocks map[common.Bnum]disk.Block
}

// MkImage returns an image with every address unwritten.
func MkImage() Image {
	return Image{blocks: make(map[common.Bnum]disk.Block)}
}

// MkImageFrom builds an image from an address to payload map. The payloads
// are copied.
func MkImageFrom(m map[common.Bnum]disk.Block) Image {
	img := MkImage()
	for a, blk := range m {
		if len(blk) == 0 {
			continue
		}
		img.blocks[a] = util.CloneByteSlice(blk)
	}
	return img
}

// Read returns the payload at a, or an empty payload if a was never written.
//
// The returned block is shared with the image and must not be modified.
func (img Image) Read(a common.Bnum) disk.Block {
	return img.blocks[a]
}

// Write returns a copy of img with a holding payload.
func (img Image) Write(a common.Bnum, payload disk.Block) Image {
	blocks := make(map[common.Bnum]disk.Block, len(img.blocks)+1)
	for k, v := range img.blocks {
		blocks[k] = v
	}
	if len(payload) == 0 {
		delete(blocks, a)
	} else {
		blocks[a] = util.CloneByteSlice(payload)
	}
	return Image{blocks: blocks}
}

// Len is the number of addresses holding a non-default payload.
func (img Image) Len() uint64 {
	return uint64(len(img.blocks))
}

// Addrs returns the written addresses in ascending order.
func (img Image) Addrs() []common.Bnum {
	addrs := make([]common.Bnum, 0, len(img.blocks))
	for a := range img.blocks {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (img Image) Equal(other Image) bool {
	return len(Diff(img, other)) == 0
}

// Diff returns, in ascending order, every address at which a and b hold
// different payloads. It is empty iff the images are logically equal, and
// Diff(a, b) == Diff(b, a).
func Diff(a Image, b Image) []common.Bnum {
	diff := make([]common.Bnum, 0)
	for addr, blk := range a.blocks {
		if !bytes.Equal(blk, b.blocks[addr]) {
			diff = append(diff, addr)
		}
	}
	for addr := range b.blocks {
		if _, ok := a.blocks[addr]; !ok {
			diff = append(diff, addr)
		}
	}
	sort.Slice(diff, func(i, j int) bool { return diff[i] < diff[j] })
	return diff
}

func (img Image) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, a := range img.Addrs() {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%d:%q", a, img.blocks[a])
	}
	sb.WriteString("}")
	return sb.String()
}
