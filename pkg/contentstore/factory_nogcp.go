//go:build !gcp

package contentstore

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(context.Context) (Store, error) {
	return nil, fmt.Errorf("GCS content store is not enabled in this build (use -tags gcp)")
}
