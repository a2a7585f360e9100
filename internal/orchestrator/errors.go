package orchestrator

import "errors"

var errNoConnector = errors.New("no transport connector configured")
