// Package creds loads the persisted credential bundle: a JSON array of
// cookie records in the browser export format. The bundle is captured by
// external tooling; this package only deserializes it.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"streakd/internal/browser"
)

// ErrMissing indicates no credential bundle is present on disk. There is no
// recovery path inside a run; the cookies must be re-exported.
var ErrMissing = errors.New("credential bundle not found")

// Load reads the cookie records from path.
func Load(path string) ([]browser.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (export your session cookies first)", ErrMissing, path)
		}
		return nil, fmt.Errorf("read cookies %s: %w", path, err)
	}

	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMissing, path)
	}
	return cookies, nil
}
