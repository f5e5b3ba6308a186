//go:build !linux

package pin

import (
	"errors"
	"os"
)

func keyHeld(*os.File, uint16) (bool, error) {
	return false, errors.New("evdev is only available on linux")
}
