package opcode

// Exposes unexported decoders to the external opcode_test package, which
// cannot live in package opcode because redotest imports opcode.
var (
	DecodeKTB  = decodeKTB
	DecodeKDO  = decodeKDO
	DecodeKTUB = decodeKTUB
)

func (k *KDO) IsNull(i int) bool { return k.isNull(i) }
