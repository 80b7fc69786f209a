package image

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/util"
)

// FromDisk snapshots d. All-zero blocks are treated as unwritten, and
// trailing zero bytes are trimmed so that Install followed by FromDisk
// round-trips an image.
func FromDisk(d disk.Disk) Image {
	img := MkImage()
	sz := d.Size()
	for a := uint64(0); a < sz; a++ {
		blk := d.Read(a)
		if util.IsZero(blk) {
			continue
		}
		img.blocks[common.Bnum(a)] = util.CloneByteSlice(util.TrimZero(blk))
	}
	util.DPrintf(1, "FromDisk: %d of %d blocks written\n", img.Len(), sz)
	return img
}

// Install writes every payload of img to its block on d, zero-padded to
// disk.BlockSize, and then issues a barrier.
//
// Addresses outside d, or payloads that do not fit in a block, are rejected
// before anything is written.
func Install(d disk.Disk, img Image) error {
	sz := d.Size()
	addrs := img.Addrs()
	for _, a := range addrs {
		if uint64(a) >= sz {
			return fmt.Errorf("install: address %d beyond disk of %d blocks", a, sz)
		}
		if uint64(len(img.blocks[a])) > disk.BlockSize {
			return fmt.Errorf("install: payload at %d is %d bytes, block is %d",
				a, len(img.blocks[a]), disk.BlockSize)
		}
	}
	for _, a := range addrs {
		blk := make(disk.Block, disk.BlockSize)
		copy(blk, img.blocks[a])
		util.DPrintf(5, "Install: block %d\n", a)
		d.Write(uint64(a), blk)
	}
	d.Barrier()
	return nil
}
