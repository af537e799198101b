// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"github.com/vdo/vdo"
	"github.com/vdo/vdo/config"
	"github.com/vdo/vdo/internal/base"
)

// openExisting parses table and reopens the volume already formatted at
// name, mirroring the device-mapper resume path: the table line must
// match the geometry the volume was created with.
func openExisting(name, table string) (*vdo.Device, error) {
	cfg, err := config.Parse(table)
	if err != nil {
		return nil, err
	}
	return vdo.Load(name, cfg, vdo.Options{Logger: base.DefaultLogger{}})
}
