package mac

// Status codes mirror the host-facing status() surface in spec.md §6.
const (
	StatusSuccess                int32 = 1
	StatusUnspecifiedError       int32 = 2
	StatusRfInitFailed           int32 = 3
	StatusTxDelivered            int32 = 4
	StatusTxFailed               int32 = 5
	StatusBadBufSize             int32 = 6
	StatusBadAddress             int32 = 7
	StatusBadMacAddress          int32 = 8
	StatusIllegalArgument        int32 = 9
	StatusInsufficientBufferSpace int32 = 10
)

// DebugLevel gates how much the Sender logs about its internal state
// machine. command(1, val) sets this with explicit branches per value
// — value 1 ("errors only") must not also enable full tracing.
type DebugLevel int32

const (
	DebugNone DebugLevel = iota
	DebugErrors
	DebugFull
)

// Command values recognized by Controller.Command, per spec.md §6.
const (
	CmdHelp           int32 = 0
	CmdDebugLevel     int32 = 1
	CmdSlotSelection  int32 = 2
	CmdBeaconInterval int32 = 3
)
