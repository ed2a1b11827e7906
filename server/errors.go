package server

import "errors"

// errValidation marks caller-supplied parameters that are out of range.
// Handlers translate it to a 400 with a specific message.
var errValidation = errors.New("invalid request parameter")
