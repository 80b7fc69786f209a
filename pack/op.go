package pack

import (
	"fmt"

	"github.com/mit-pdos/go-walbsim/common"
)

// Op is one step of a pack's life cycle.
type Op uint8

const (
	SubmitLog Op = iota
	CompleteLog
	SubmitData
	CompleteData
	numOps
)

// AllOps lists every operation in life-cycle order.
var AllOps = []Op{SubmitLog, CompleteLog, SubmitData, CompleteData}

func (op Op) Valid() bool {
	return op < numOps
}

func (op Op) String() string {
	switch op {
	case SubmitLog:
		return "SubmitLog"
	case CompleteLog:
		return "CompleteLog"
	case SubmitData:
		return "SubmitData"
	case CompleteData:
		return "CompleteData"
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// ParseOp is the inverse of Op.String.
func ParseOp(s string) (Op, error) {
	for _, op := range AllOps {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// A Candidate is an operation applied to one pack.
type Candidate struct {
	Id common.PackId
	Op Op
}

func MkCandidate(id common.PackId, op Op) Candidate {
	return Candidate{Id: id, Op: op}
}

func (c Candidate) String() string {
	return fmt.Sprintf("(%d,%v)", c.Id, c.Op)
}
