//go:build !linux

package sysmetrics

import "context"

// readBattery reports no battery on platforms without a sysfs power_supply
// class.
func readBattery(_ context.Context) (Battery, error) {
	return Battery{}, nil
}
