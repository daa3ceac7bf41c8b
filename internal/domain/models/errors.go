package models

import "errors"

var (
	ErrResolution            = errors.New("strategy implementation not found")
	ErrConfig                = errors.New("strategy configuration missing")
	ErrAccountNotFound       = errors.New("account not found")
	ErrDuplicatePosition     = errors.New("position already exists")
	ErrPositionNotFound      = errors.New("position not found")
	ErrUnsupportedPluginType = errors.New("unsupported plugin registry type")
	ErrForbiddenOperation    = errors.New("operation forbidden")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrPluginNotFound        = errors.New("plugin not found")
	ErrNoActiveDetector      = errors.New("no active detector")
	ErrNotReady              = errors.New("detector not ready")
)
