// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package runstore

import (
	"errors"
	"strings"
)

// ErrInvalidCursor signals a cursor that fails the "field1|field2" shape check.
var ErrInvalidCursor = errors.New("runstore: invalid cursor")

// runListCursor decodes and encodes the opaque "created_at|run_id" cursor
// used by ListRuns pagination.
type runListCursor struct {
	CreatedAt string
	RunID     string
}

func decodeRunListCursor(raw string) (*runListCursor, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidCursor
	}
	return &runListCursor{CreatedAt: parts[0], RunID: parts[1]}, nil
}

func (c runListCursor) encode() string {
	return c.CreatedAt + "|" + c.RunID
}
