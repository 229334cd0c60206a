//go:build !linux

package local

import "github.com/omnidrive/omnidrive/pkg/provider"

// diskQuota is unavailable off Linux; usage reads as unknown.
func diskQuota(_ string) (provider.Quota, error) {
	return provider.UnknownQuota, nil
}
