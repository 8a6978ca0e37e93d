//go:build !unix

package mmap

import "os"

func osMap(*os.File, int) ([]byte, func([]byte) error, error) {
	return nil, nil, ErrUnsupported
}
