package s3client

import (
	"fmt"
	"path"
	"strings"
)

// ParseS3URI splits s3://bucket/prefix into its bucket and a prefix without
// leading or trailing slashes.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URI: must start with s3://")
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "s3://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.Trim(path.Clean("/"+parts[1]), "/")
	}
	return bucket, prefix, nil
}

// ObjectKey joins prefix and name into an object key.
func ObjectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
