package fileops

import "errors"

// ErrBinaryFile is returned when a read or search touches a file that fails
// the text probe. The message is part of the tool contract.
var ErrBinaryFile = errors.New("Binary file detected")
