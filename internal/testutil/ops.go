package testutil

import (
	"fmt"
	"time"
)

// OpKind names a cache operation generated for model tests.
type OpKind int

// Operation kinds.
const (
	OpPut OpKind = iota
	OpGet
	OpRemove
	OpSweep
	OpAdvance
	opKindCount
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpGet:
		return "get"
	case OpRemove:
		return "remove"
	case OpSweep:
		return "sweep"
	case OpAdvance:
		return "advance"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one generated cache operation. Fields unused by Kind are zero.
type Op struct {
	Kind      OpKind
	Key       uint64
	Value     uint64
	Priority  int64
	MaxAgeSec int64
	Advance   time.Duration
}

func (o Op) String() string {
	switch o.Kind {
	case OpPut:
		return fmt.Sprintf("put(key=%d, value=%d, priority=%d, max_age=%d)", o.Key, o.Value, o.Priority, o.MaxAgeSec)
	case OpGet, OpRemove:
		return fmt.Sprintf("%s(key=%d)", o.Kind, o.Key)
	case OpAdvance:
		return fmt.Sprintf("advance(%s)", o.Advance)
	default:
		return o.Kind.String()
	}
}

// NextOp decodes one operation. Keys fall in [0, keySpace) so generated
// workloads revisit keys and fill pages.
func (s *ByteStream) NextOp(keySpace int) Op {
	kind := OpKind(s.NextInt(int(opKindCount)))
	op := Op{Kind: kind}

	switch kind {
	case OpPut:
		op.Key = uint64(s.NextInt(keySpace))
		op.Value = uint64(s.NextByte())
		op.Priority = int64(s.NextInt(4))
		op.MaxAgeSec = int64(s.NextInt(4))
	case OpGet, OpRemove:
		op.Key = uint64(s.NextInt(keySpace))
	case OpAdvance:
		op.Advance = time.Duration(s.NextInt(3)) * time.Second
	case OpSweep, opKindCount:
	}

	return op
}
