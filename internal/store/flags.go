package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DeviceFlags is a boolean key-value store scoped to one device id.
type DeviceFlags struct {
	store    *Store
	deviceID string
}

// NewDeviceFlags returns the flag store for deviceID.
func NewDeviceFlags(st *Store, deviceID string) *DeviceFlags {
	return &DeviceFlags{store: st, deviceID: deviceID}
}

// DeviceID returns the device the flags belong to.
func (f *DeviceFlags) DeviceID() string {
	return f.deviceID
}

// Get reads a flag. Missing flags are false.
func (f *DeviceFlags) Get(key string) (bool, error) {
	var value int
	err := f.store.db.QueryRowContext(context.Background(),
		`SELECT value FROM local_flags WHERE device_id = ? AND flag_key = ?`,
		f.deviceID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// Set writes a flag.
func (f *DeviceFlags) Set(key string, value bool) error {
	v := 0
	if value {
		v = 1
	}
	_, err := f.store.db.ExecContext(context.Background(),
		`INSERT INTO local_flags (device_id, flag_key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id, flag_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		f.deviceID, key, v, f.store.now().UTC().Format(time.RFC3339Nano))
	return err
}
