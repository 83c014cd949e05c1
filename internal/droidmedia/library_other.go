// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux

package droidmedia

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hwenc/internal/device"
)

func load([]string) error {
	return errors.New("libdroidmedia requires linux")
}

func newDevice(device.Params, zerolog.Logger) (device.Device, error) {
	return nil, ErrUnavailable
}
