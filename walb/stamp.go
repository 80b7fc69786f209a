package walb

import (
	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/util"
)

// stamps remembers, per address, the pack whose write a storage view
// currently holds.
//
// Data submissions and completions of different packs may happen in any
// order, but a storage view must look as if packs were applied in log
// order. A write from a pack older than the stamp has been superseded and is
// dropped.
type stamps map[common.Bnum]common.PackId

func (s stamps) install(img image.Image, p pack.Pack) image.Image {
	for _, w := range p.Writes {
		id, ok := s[w.Addr]
		if ok && id > p.Id {
			util.DPrintf(5, "install: pack %d superseded at %d by pack %d\n",
				p.Id, w.Addr, id)
			continue
		}
		s[w.Addr] = p.Id
		img = img.Write(w.Addr, w.Block)
	}
	return img
}
