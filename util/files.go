package util

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Checksum returns the hex MD5 digest of a file
func Checksum(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", filename)
	}
	defer file.Close()
	digest := md5.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", errors.Wrapf(err, "reading %s", filename)
	}
	return fmt.Sprintf("%x", digest.Sum(nil)), nil
}
