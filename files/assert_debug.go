//go:build uviodebug

package files

import (
	"fmt"
)

func assertTerminated(packed []byte) {
	panic(fmt.Sprintf("files: readdir: unterminated name in %q", packed))
}
