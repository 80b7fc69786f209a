// Package fixture encodes simulator inputs and stores them in files.
//
// A fixture file is a sequence of little-endian uint64 fields written with
// marshal, with payload bytes stored inline after their length:
//
//	magic, kind, body..., crc
//
// where crc is the IEEE crc32 of everything before it. An image body is the
// number of blocks followed by (addr, len, bytes) triples; a groups body is
// the number of groups, and per group the number of packs, and per pack its
// id, its number of writes, and (addr, len, bytes) per write.
package fixture

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/util"
)

const (
	MAGIC uint64 = 0x77616c6273696d31 // "walbsim1"

	KINDIMAGE  uint64 = 1
	KINDGROUPS uint64 = 2

	hdrSize = uint64(16)
	crcSize = uint64(8)
)

var ErrCorrupt = errors.New("corrupt fixture")

// encoder writes integer fields with marshal and payload bytes verbatim.
type encoder struct {
	b []byte
}

func mkEncoder(kind uint64) *encoder {
	e := &encoder{}
	e.putInt(MAGIC)
	e.putInt(kind)
	return e
}

func (e *encoder) putInt(x uint64) {
	enc := marshal.NewEnc(8)
	enc.PutInt(x)
	e.b = append(e.b, enc.Finish()...)
}

func (e *encoder) putWrite(w pack.Write) {
	e.putInt(uint64(w.Addr))
	e.putInt(uint64(len(w.Block)))
	e.b = append(e.b, w.Block...)
}

// finish appends the crc of everything encoded so far.
func (e *encoder) finish() []byte {
	e.putInt(uint64(crc32.ChecksumIEEE(e.b)))
	return e.b
}

func EncodeImage(img image.Image) []byte {
	e := mkEncoder(KINDIMAGE)
	addrs := img.Addrs()
	e.putInt(uint64(len(addrs)))
	for _, a := range addrs {
		e.putWrite(pack.MkWrite(a, img.Read(a)))
	}
	return e.finish()
}

func EncodeGroups(groups []pack.Group) []byte {
	e := mkEncoder(KINDGROUPS)
	e.putInt(uint64(len(groups)))
	for _, g := range groups {
		e.putInt(uint64(len(g)))
		for _, p := range g {
			e.putInt(uint64(p.Id))
			e.putInt(uint64(len(p.Writes)))
			for _, w := range p.Writes {
				e.putWrite(w)
			}
		}
	}
	return e.finish()
}

// decoder bounds-checks every field, so that a truncated or lying file is
// reported as ErrCorrupt instead of panicking.
type decoder struct {
	b    []byte
	left uint64
}

func (d *decoder) getInt() (uint64, error) {
	if d.left < 8 {
		return 0, fmt.Errorf("truncated field: %w", ErrCorrupt)
	}
	x := marshal.NewDec(d.b[:8]).GetInt()
	d.b = d.b[8:]
	d.left -= 8
	return x, nil
}

func (d *decoder) getBytes(n uint64) ([]byte, error) {
	if d.left < n {
		return nil, fmt.Errorf("payload of %d bytes with %d left: %w", n, d.left, ErrCorrupt)
	}
	b := util.CloneByteSlice(d.b[:n])
	d.b = d.b[n:]
	d.left -= n
	return b, nil
}

func (d *decoder) getWrite() (pack.Write, error) {
	a, err := d.getInt()
	if err != nil {
		return pack.Write{}, err
	}
	n, err := d.getInt()
	if err != nil {
		return pack.Write{}, err
	}
	b, err := d.getBytes(n)
	if err != nil {
		return pack.Write{}, err
	}
	return pack.MkWrite(common.Bnum(a), disk.Block(b)), nil
}

// getCount reads a count of items that each take at least itemSize bytes.
func (d *decoder) getCount(itemSize uint64) (uint64, error) {
	n, err := d.getInt()
	if err != nil {
		return 0, err
	}
	if n > d.left/itemSize {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes: %w", n, d.left, ErrCorrupt)
	}
	return n, nil
}

func open(b []byte, kind uint64) (*decoder, error) {
	if uint64(len(b)) < hdrSize+crcSize {
		return nil, fmt.Errorf("fixture of %d bytes: %w", len(b), ErrCorrupt)
	}
	body := b[:uint64(len(b))-crcSize]
	crc := marshal.NewDec(b[len(body):]).GetInt()
	if crc != uint64(crc32.ChecksumIEEE(body)) {
		return nil, fmt.Errorf("checksum mismatch: %w", ErrCorrupt)
	}
	d := &decoder{b: body, left: uint64(len(body))}
	magic, _ := d.getInt()
	if magic != MAGIC {
		return nil, fmt.Errorf("bad magic %#x: %w", magic, ErrCorrupt)
	}
	k, _ := d.getInt()
	if k != kind {
		return nil, fmt.Errorf("fixture kind %d, want %d: %w", k, kind, ErrCorrupt)
	}
	return d, nil
}

func DecodeImage(b []byte) (image.Image, error) {
	d, err := open(b, KINDIMAGE)
	if err != nil {
		return image.Image{}, err
	}
	n, err := d.getCount(16)
	if err != nil {
		return image.Image{}, err
	}
	m := make(map[common.Bnum]disk.Block, n)
	for i := uint64(0); i < n; i++ {
		w, err := d.getWrite()
		if err != nil {
			return image.Image{}, err
		}
		if _, ok := m[w.Addr]; ok {
			return image.Image{}, fmt.Errorf("address %d repeated: %w", w.Addr, ErrCorrupt)
		}
		m[w.Addr] = w.Block
	}
	if d.left != 0 {
		return image.Image{}, fmt.Errorf("%d trailing bytes: %w", d.left, ErrCorrupt)
	}
	return image.MkImageFrom(m), nil
}

// DecodeGroups decodes a groups fixture. Pack ids are returned as stored;
// validating their order is left to the consumer.
func DecodeGroups(b []byte) ([]pack.Group, error) {
	d, err := open(b, KINDGROUPS)
	if err != nil {
		return nil, err
	}
	ngroups, err := d.getCount(8)
	if err != nil {
		return nil, err
	}
	groups := make([]pack.Group, 0, ngroups)
	for g := uint64(0); g < ngroups; g++ {
		npacks, err := d.getCount(16)
		if err != nil {
			return nil, err
		}
		grp := make(pack.Group, 0, npacks)
		for p := uint64(0); p < npacks; p++ {
			id, err := d.getInt()
			if err != nil {
				return nil, err
			}
			nwrites, err := d.getCount(16)
			if err != nil {
				return nil, err
			}
			writes := make([]pack.Write, 0, nwrites)
			for i := uint64(0); i < nwrites; i++ {
				w, err := d.getWrite()
				if err != nil {
					return nil, err
				}
				writes = append(writes, w)
			}
			grp = append(grp, pack.Pack{Id: common.PackId(id), Writes: writes})
		}
		groups = append(groups, grp)
	}
	if d.left != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", d.left, ErrCorrupt)
	}
	return groups, nil
}
