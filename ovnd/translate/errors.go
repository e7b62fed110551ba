package translate

import (
	"errors"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// ErrInvalidInput is returned for malformed input (bad binding profile,
// VLAN tag out of range) before any database interaction happens.
var ErrInvalidInput = errors.New("invalid input")

func isNotFound(err error) bool {
	return errors.Is(err, ovn.ErrNotFound) || errors.Is(err, cloud.ErrNotFound)
}
