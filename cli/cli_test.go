package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/fixture"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/sim"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func genFixtures(t *testing.T) (string, string) {
	dir := t.TempDir()
	ipath := filepath.Join(dir, "image.bin")
	ppath := filepath.Join(dir, "packs.bin")
	out, err := execute(t, "gen", "--image", ipath, "--packs", ppath,
		"--seed", "5", "--blocks", "8", "--base-blocks", "2", "--groups", "3",
		"--packs-per-group", "3", "--writes", "2", "--payload", "3")
	require.Nil(t, err, out)
	assert.Contains(t, out, "OK wrote")
	return ipath, ppath
}

func TestGenShow(t *testing.T) {
	ipath, ppath := genFixtures(t)
	showImagePath, showPacksPath = "", ""
	out, err := execute(t, "show", "--image", ipath, "--packs", ppath)
	require.Nil(t, err, out)
	assert.Contains(t, out, "image:")
	assert.Contains(t, out, "group 2:")
	assert.Contains(t, out, "pack 8 [")

	showImagePath, showPacksPath = "", ""
	_, err = execute(t, "show")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	ipath, ppath := genFixtures(t)
	raw := filepath.Join(t.TempDir(), "out.img")
	for _, policy := range []string{"fast", "easy"} {
		out, err := execute(t, "run", "--image", ipath, "--packs", ppath,
			"--plug", "2", "--loop", "40", "--policy", policy, "--crash-pct", "10",
			"--seed", "3", "--workers", "2", "--out", raw, "--out-blocks", "8")
		require.Nil(t, err, out)
		assert.Contains(t, out, "plug pack list:")
		assert.Contains(t, out, "testStorage:")
		assert.Contains(t, out, "OK 40 loops, 9 packs, policy "+policy)
		assert.NotContains(t, out, "ERROR")
	}

	img, err := fixture.LoadImage(ipath)
	require.Nil(t, err)
	groups, err := fixture.LoadGroups(ppath)
	require.Nil(t, err)
	want := sim.Reference(img, groups, common.PackId(len(pack.Flatten(groups))))

	d, err := disk.NewFileDisk(raw, 8)
	require.Nil(t, err)
	defer d.Close()
	assert.Empty(t, image.Diff(want, image.FromDisk(d)), "raw disk holds the reference")
}

func TestRunRejects(t *testing.T) {
	_, ppath := genFixtures(t)
	cases := [][]string{
		{"run", "--packs", ppath, "--image", "", "--policy", "slow"},
		{"run", "--packs", ppath, "--image", "", "--policy", "fast", "--plug", "0"},
		{"run", "--packs", ppath, "--image", "", "--plug", "1", "--crash-pct", "100"},
		{"run", "--packs", filepath.Join(t.TempDir(), "missing"), "--crash-pct", "0"},
	}
	for _, args := range cases {
		_, err := execute(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	out, err := execute(t, "--version")
	require.Nil(t, err)
	assert.Equal(t, "1.2.3\n", out)
}
