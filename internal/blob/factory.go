package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation using environment variables.
//
//	PATCHPIPE_RAWDATA_DRIVER: fs|s3|memory (default fs)
//	PATCHPIPE_RAWDATA_FS_ROOT: directory root when driver=fs (default ./rawdata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("PATCHPIPE_RAWDATA_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("PATCHPIPE_RAWDATA_FS_ROOT")
		return NewFS(root)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown rawdata driver %s", driver)
	}
}
