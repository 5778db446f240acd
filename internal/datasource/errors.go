package datasource

import "errors"

var ErrSourceNotFound = errors.New("data source not found")
