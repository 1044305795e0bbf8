/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/durable"
)

// timeStore adapts a durable table to opsnotify.TimeStore, so alert dedup
// windows survive process restarts.
type timeStore struct {
	table durable.TableStore
}

func newTimeStore(table durable.TableStore) *timeStore {
	return &timeStore{table: table}
}

func (t *timeStore) Set(key, kind string, at time.Time) error {
	return t.table.Put(context.Background(), durable.Key{key, kind}, []byte(at.UTC().Format(time.RFC3339)))
}

func (t *timeStore) Get(key, kind string) (time.Time, error) {
	data, err := t.table.Get(context.Background(), durable.Key{key, kind})
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, string(data))
}
