package eventloop

// OpKind identifies the operation a Request performs.
type OpKind uint8

const (
	OpUnknown OpKind = iota
	OpWork
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpUnlink
	OpMkdir
	OpRmdir
	OpReaddir
	OpStat
	OpFstat
	OpLstat
	OpRename
	OpFsync
	OpFdatasync
	OpFtruncate
	OpSendfile
	OpChmod
	OpFchmod
	OpChown
	OpFchown
	OpUtime
	OpFutime
	OpLink
	OpSymlink
	OpReadlink
	OpStreamWrite
	OpShutdown
	OpConnect
	OpSend
)

// opNames are also used as the syscall name reported in errors.
var opNames = [...]string{
	OpUnknown:     "unknown",
	OpWork:        "work",
	OpOpen:        "open",
	OpClose:       "close",
	OpRead:        "read",
	OpWrite:       "write",
	OpUnlink:      "unlink",
	OpMkdir:       "mkdir",
	OpRmdir:       "rmdir",
	OpReaddir:     "readdir",
	OpStat:        "stat",
	OpFstat:       "fstat",
	OpLstat:       "lstat",
	OpRename:      "rename",
	OpFsync:       "fsync",
	OpFdatasync:   "fdatasync",
	OpFtruncate:   "ftruncate",
	OpSendfile:    "sendfile",
	OpChmod:       "chmod",
	OpFchmod:      "fchmod",
	OpChown:       "chown",
	OpFchown:      "fchown",
	OpUtime:       "utime",
	OpFutime:      "futime",
	OpLink:        "link",
	OpSymlink:     "symlink",
	OpReadlink:    "readlink",
	OpStreamWrite: "write",
	OpShutdown:    "shutdown",
	OpConnect:     "connect",
	OpSend:        "send",
}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return opNames[OpUnknown]
}
