package domain

import "errors"

var ErrUnsupportedSource = errors.New("unsupported source type")
