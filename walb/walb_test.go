package walb

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
)

func blk(s string) disk.Block {
	return disk.Block(s)
}

func singleWritePacks(payloads ...string) []pack.Group {
	var g pack.Group
	for i, p := range payloads {
		g = append(g, pack.MkPack(common.PackId(i),
			[]pack.Write{pack.MkWrite(common.Bnum(i), blk(p))}))
	}
	return []pack.Group{g}
}

type WalbSuite struct {
	suite.Suite
	m *PackStateManager
}

func (suite *WalbSuite) SetupTest() {
	m, err := MkPackStateManager(image.MkImage(), singleWritePacks("A", "B", "C"), true)
	suite.Require().Nil(err)
	suite.m = m
}

func TestWalb(t *testing.T) {
	suite.Run(t, new(WalbSuite))
}

func (suite *WalbSuite) exec(id int, op pack.Op) bool {
	return suite.m.Execute(common.PackId(id), op)
}

func (suite *WalbSuite) TestFullRun() {
	m := suite.m
	steps := 0
	for cands := m.GetCandidates(2); len(cands) > 0; cands = m.GetCandidates(2) {
		c := cands[0]
		m.Execute(c.Id, c.Op)
		steps++
	}
	suite.Equal(12, steps)
	suite.Empty(image.Diff(m.VStorage(), m.RStorage()))
	want := image.MkImage().Write(0, blk("A")).Write(1, blk("B")).Write(2, blk("C"))
	suite.Empty(image.Diff(want, m.RStorage()))
	suite.Equal(common.PackId(3), m.FirstNotEnded())
	suite.Equal(common.PackId(3), m.Frontier())
}

func (suite *WalbSuite) TestCrashAfterSecondLog() {
	m := suite.m
	suite.exec(0, pack.SubmitLog)
	suite.exec(0, pack.CompleteLog)
	suite.exec(1, pack.SubmitLog)
	suite.exec(1, pack.CompleteLog)

	suite.Equal(uint64(0), m.VStorage().Len(), "no data submitted yet")
	f := m.DoCrashRecovery()
	suite.Equal(common.PackId(2), f)
	want := image.MkImage().Write(0, blk("A")).Write(1, blk("B"))
	suite.Empty(image.Diff(want, m.RStorage()))
	suite.Nil(m.RStorage().Read(2))
	suite.Empty(image.Diff(m.VStorage(), m.RStorage()))

	suite.Equal(f, m.DoCrashRecovery(), "recovery should be idempotent")
	suite.Empty(image.Diff(want, m.RStorage()))
}

func (suite *WalbSuite) TestStorageViews() {
	m := suite.m
	suite.exec(0, pack.SubmitLog)
	suite.exec(0, pack.CompleteLog)
	suite.exec(0, pack.SubmitData)
	suite.Equal(blk("A"), m.VStorage().Read(0), "submitted data is visible")
	suite.Nil(m.RStorage().Read(0), "but not durable")
	changed := suite.exec(0, pack.CompleteData)
	suite.True(changed, "pack 0 completed")
	suite.Equal(blk("A"), m.RStorage().Read(0))
	suite.False(suite.exec(1, pack.SubmitLog))
}

func (suite *WalbSuite) TestIllegalExecutePanics() {
	suite.Panics(func() { suite.exec(1, pack.SubmitLog) }, "pack 0 log not durable")
	suite.Panics(func() { suite.exec(0, pack.SubmitData) }, "write-ahead rule")
	suite.Panics(func() { suite.exec(0, pack.CompleteLog) })
	suite.Panics(func() { suite.exec(3, pack.SubmitLog) }, "no such pack")
	suite.Panics(func() { suite.exec(0, pack.Op(42)) })
	suite.exec(0, pack.SubmitLog)
	suite.Panics(func() { suite.exec(0, pack.SubmitLog) })
}

func (suite *WalbSuite) TestRecoveryResetsLostLog() {
	m := suite.m
	suite.exec(0, pack.SubmitLog)
	suite.Equal(common.PackId(0), m.DoCrashRecovery())
	states := m.PackStateList()
	suite.Equal(pack.Pending, states[0].Phase(), "in-flight log was lost")
	suite.Equal(uint64(0), m.RStorage().Len())

	// the run can continue after recovery
	suite.exec(0, pack.SubmitLog)
	suite.exec(0, pack.CompleteLog)
	suite.Equal(common.PackId(1), m.DoCrashRecovery())
	suite.Equal(blk("A"), m.RStorage().Read(0))
	suite.Equal(pack.Completed, m.PackStateList()[0].Phase())
	suite.Equal(common.PackId(1), m.FirstNotEnded())
}

func (suite *WalbSuite) TestPackStateListIsSnapshot() {
	m := suite.m
	states := m.PackStateList()
	suite.Equal(3, len(states))
	suite.Equal(m.TotalNumPacks(), uint64(len(states)))
	states[0].LogSubmitted = true
	suite.Equal(pack.Pending, m.PackStateList()[0].Phase())
}

func TestMalformedInput(t *testing.T) {
	assert := assert.New(t)
	groups := []pack.Group{{pack.MkPack(0, nil)}, {pack.MkPack(0, nil)}}
	_, err := MkPackStateManager(image.MkImage(), groups, true)
	assert.True(errors.Is(err, pack.ErrPackId))

	m, err := MkPackStateManager(image.MkImage(), nil, false)
	assert.Nil(err)
	assert.Empty(m.GetCandidates(1))
	assert.Equal(common.PackId(0), m.DoCrashRecovery())
}

// Two packs writing the same block; pack 1 completes its data before
// pack 0 does. The views must still reflect log order.
func TestOverlappingOutOfOrder(t *testing.T) {
	assert := assert.New(t)
	groups := []pack.Group{{
		pack.MkPack(0, []pack.Write{pack.MkWrite(5, blk("old"))}),
		pack.MkPack(1, []pack.Write{pack.MkWrite(5, blk("new"))}),
	}}
	m, err := MkPackStateManager(image.MkImage().Write(5, blk("base")), groups, true)
	assert.Nil(err)
	m.Execute(0, pack.SubmitLog)
	m.Execute(0, pack.CompleteLog)
	m.Execute(1, pack.SubmitLog)
	m.Execute(1, pack.CompleteLog)
	m.Execute(1, pack.SubmitData)
	m.Execute(0, pack.SubmitData)
	assert.Equal(blk("new"), m.VStorage().Read(5))
	m.Execute(1, pack.CompleteData)
	assert.Equal(blk("new"), m.RStorage().Read(5))
	assert.True(m.Execute(0, pack.CompleteData), "packs 0 and 1 end together")
	assert.Equal(blk("new"), m.RStorage().Read(5), "older pack must not clobber")
	assert.Equal(common.PackId(2), m.FirstNotEnded())
}

func TestRecoveryRedoesInOrder(t *testing.T) {
	assert := assert.New(t)
	groups := []pack.Group{{
		pack.MkPack(0, []pack.Write{pack.MkWrite(5, blk("old"))}),
		pack.MkPack(1, []pack.Write{pack.MkWrite(5, blk("new")), pack.MkWrite(6, blk("x"))}),
	}}
	m, err := MkPackStateManager(image.MkImage(), groups, true)
	assert.Nil(err)
	m.Execute(0, pack.SubmitLog)
	m.Execute(0, pack.CompleteLog)
	m.Execute(1, pack.SubmitLog)
	m.Execute(1, pack.CompleteLog)
	m.Execute(1, pack.SubmitData)
	m.Execute(1, pack.CompleteData)
	assert.Equal(common.PackId(2), m.DoCrashRecovery())
	assert.Equal(blk("new"), m.RStorage().Read(5))
	assert.Empty(image.Diff(m.VStorage(), m.RStorage()))
}

func randomRun(t *testing.T, groups []pack.Group, fast bool, rng *rand.Rand, nPlug int) *PackStateManager {
	m, err := MkPackStateManager(image.MkImage(), groups, fast)
	assert.Nil(t, err)
	steps := 0
	for cands := m.GetCandidates(nPlug); len(cands) > 0; cands = m.GetCandidates(nPlug) {
		c := cands[rng.Intn(len(cands))]
		m.Execute(c.Id, c.Op)
		steps++
	}
	assert.LessOrEqual(t, steps, int(4*m.TotalNumPacks()))
	return m
}

func TestPolicyEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var g pack.Group
	for i := 0; i < 8; i++ {
		g = append(g, pack.MkPack(common.PackId(i), []pack.Write{
			pack.MkWrite(common.Bnum(i%3), []byte{byte('a' + i)}),
			pack.MkWrite(common.Bnum(3+i%2), []byte{byte('A' + i)}),
		}))
	}
	groups := []pack.Group{g}
	easy := randomRun(t, groups, false, rng, 3)
	for i := 0; i < 50; i++ {
		fast := randomRun(t, groups, true, rng, 3)
		assert.Empty(t, image.Diff(easy.RStorage(), fast.RStorage()))
		assert.Empty(t, image.Diff(easy.VStorage(), fast.VStorage()))
		assert.Empty(t, image.Diff(fast.VStorage(), fast.RStorage()))
	}
}
