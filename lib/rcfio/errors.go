package rcfio

import (
	"errors"
	"fmt"
)

var (
	errTruncatedHeader = errors.New("truncated rcfio header")
	errBadMagic        = errors.New("bad rcfio magic")
)

func errUnsupportedVersion(got uint32) error {
	return fmt.Errorf("unsupported rcfio version %d (want %d)", got, version)
}
