package config

import "errors"

var (
	ErrConfigRead    = errors.New("failed to read config file")
	ErrConfigParse   = errors.New("failed to parse config file")
	ErrInvalidConfig = errors.New("invalid configuration")
)
