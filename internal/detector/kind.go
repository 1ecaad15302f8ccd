package detector

import (
	"errors"
	"fmt"
)

// Kind is the category of a drift check. Kinds are encoded as integers in
// definition documents.
type Kind int

const (
	KindExposure Kind = 1
)

var ErrUnknownKind = errors.New("unknown detector kind")

var kindNames = map[Kind]string{
	KindExposure: "exposure",
}

// KindFromCode maps a document's detector_type to a Kind. Codes without a
// matching Kind are rejected rather than cast.
func KindFromCode(code int) (Kind, error) {
	k := Kind(code)
	if _, ok := kindNames[k]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, code)
	}
	return k, nil
}

func (k Kind) Code() int {
	return int(k)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}
