//go:build linux

package local

import (
	"syscall"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

// diskQuota reports usage of the filesystem holding the root directory.
func diskQuota(root string) (provider.Quota, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return provider.UnknownQuota, nil
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	free := int64(stat.Bavail) * int64(stat.Bsize)
	return provider.Quota{
		TotalBytes: total,
		UsedBytes:  total - free,
	}, nil
}
