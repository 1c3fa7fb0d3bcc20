//go:build !unix

package hostinfo

import "fmt"

func freeDiskMB(path string) (int64, error) {
	return 0, fmt.Errorf("free disk space for %s: unsupported platform", path)
}
