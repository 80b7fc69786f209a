package fixture

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
)

// GenConfig shapes a random fixture.
type GenConfig struct {
	// Blocks is the size of the address space.
	Blocks uint64
	// BaseBlocks is how many addresses the base image has written.
	BaseBlocks    uint64
	Groups        int
	PacksPerGroup int
	// WritesPerPack is an upper bound; each pack gets 1..WritesPerPack
	// writes to distinct addresses.
	WritesPerPack int
	PayloadSize   int
}

func (cfg GenConfig) Validate() error {
	if cfg.Blocks == 0 {
		return errors.New("gen: empty address space")
	}
	if cfg.BaseBlocks > cfg.Blocks {
		return fmt.Errorf("gen: %d base blocks in %d blocks", cfg.BaseBlocks, cfg.Blocks)
	}
	if cfg.Groups < 0 || cfg.PacksPerGroup < 0 {
		return errors.New("gen: negative group or pack count")
	}
	if cfg.WritesPerPack <= 0 || uint64(cfg.WritesPerPack) > cfg.Blocks {
		return fmt.Errorf("gen: %d writes per pack in %d blocks", cfg.WritesPerPack, cfg.Blocks)
	}
	if cfg.PayloadSize <= 0 || uint64(cfg.PayloadSize) > disk.BlockSize {
		return fmt.Errorf("gen: payload size %d not in 1..%d", cfg.PayloadSize, disk.BlockSize)
	}
	return nil
}

const payloadChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func payload(rng *rand.Rand, sz int) disk.Block {
	b := make(disk.Block, sz)
	for i := range b {
		b[i] = payloadChars[rng.Intn(len(payloadChars))]
	}
	return b
}

// Generate builds a base image and plug groups with packs numbered in log
// order. Like the block layer's pack builder, a pack never writes the same
// address twice; overlap across packs is common.
func Generate(rng *rand.Rand, cfg GenConfig) (image.Image, []pack.Group, error) {
	if err := cfg.Validate(); err != nil {
		return image.Image{}, nil, err
	}
	base := make(map[common.Bnum]disk.Block)
	for _, a := range rng.Perm(int(cfg.Blocks))[:cfg.BaseBlocks] {
		base[common.Bnum(a)] = payload(rng, cfg.PayloadSize)
	}

	var groups []pack.Group
	var id common.PackId
	for g := 0; g < cfg.Groups; g++ {
		grp := make(pack.Group, 0, cfg.PacksPerGroup)
		for p := 0; p < cfg.PacksPerGroup; p++ {
			n := 1 + rng.Intn(cfg.WritesPerPack)
			var writes []pack.Write
			for _, a := range rng.Perm(int(cfg.Blocks))[:n] {
				writes = append(writes, pack.MkWrite(common.Bnum(a), payload(rng, cfg.PayloadSize)))
			}
			grp = append(grp, pack.Pack{Id: id, Writes: writes})
			id++
		}
		groups = append(groups, grp)
	}
	return image.MkImageFrom(base), groups, nil
}
