package fixture

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/util"
)

// writeFile replaces path with b and syncs it.
func writeFile(path string, b []byte) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	var off int
	for off < len(b) {
		n, err := unix.Pwrite(fd, b[off:], int64(off))
		if err != nil {
			unix.Close(fd)
			return fmt.Errorf("write %s: %w", path, err)
		}
		off += n
	}
	// NOTE: on macOS this flushes to the drive without a full barrier
	err = unix.Fsync(fd)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	util.DPrintf(3, "writeFile: %s %d bytes\n", path, len(b))
	return unix.Close(fd)
}

func readFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	b := make([]byte, stat.Size)
	var off int
	for off < len(b) {
		n, err := unix.Pread(fd, b[off:], int64(off))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("read %s: short file: %w", path, ErrCorrupt)
		}
		off += n
	}
	util.DPrintf(3, "readFile: %s %d bytes\n", path, len(b))
	return b, nil
}

func SaveImage(path string, img image.Image) error {
	return writeFile(path, EncodeImage(img))
}

func LoadImage(path string) (image.Image, error) {
	b, err := readFile(path)
	if err != nil {
		return image.Image{}, err
	}
	img, err := DecodeImage(b)
	if err != nil {
		return image.Image{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func SaveGroups(path string, groups []pack.Group) error {
	return writeFile(path, EncodeGroups(groups))
}

func LoadGroups(path string) ([]pack.Group, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	groups, err := DecodeGroups(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return groups, nil
}
