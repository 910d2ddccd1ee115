//go:build !gocv

package video

import (
	"github.com/pkg/errors"

	"thermopct/pkg/pcterrors"
)

func openGocv(path string) (FrameSource, error) {
	return nil, pcterrors.Decode("open", path, errors.New("gocv backend not compiled in (build with -tags gocv)"))
}
