//go:build linux

package sysmetrics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// powerSupplyDir is the sysfs class directory listing batteries and AC
// adapters. Overridden in tests.
var powerSupplyDir = "/sys/class/power_supply"

// readBattery reports the first battery under powerSupplyDir. A missing
// directory or no battery entry means the host has no battery.
func readBattery(_ context.Context) (Battery, error) {
	return readBatteryFrom(powerSupplyDir)
}

func readBatteryFrom(dir string) (Battery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Battery{}, nil
		}
		return Battery{}, fmt.Errorf("read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		batteryPath string
		acOnline    *bool
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		switch readSysfs(path, "type") {
		case "Battery":
			// Peripheral batteries (mice, headsets) report scope "Device".
			if batteryPath == "" && readSysfs(path, "scope") != "Device" {
				batteryPath = path
			}
		case "Mains", "USB":
			if v, ok := parseSysfsInt(readSysfs(path, "online")); ok {
				online := v == 1
				if acOnline == nil || online {
					acOnline = &online
				}
			}
		}
	}

	if batteryPath == "" {
		return Battery{}, nil
	}

	pct, err := batteryPercent(batteryPath)
	if err != nil {
		return Battery{}, err
	}

	bat := Battery{Present: true, Percent: pct}
	if acOnline != nil {
		bat.Plugged = *acOnline
	} else {
		status := strings.ToLower(readSysfs(batteryPath, "status"))
		bat.Plugged = status != "" && status != "discharging"
	}
	return bat, nil
}

// batteryPercent prefers the kernel's capacity file and falls back to
// energy or charge ratios.
func batteryPercent(path string) (float64, error) {
	if v, ok := parseSysfsInt(readSysfs(path, "capacity")); ok {
		return float64(v), nil
	}
	for _, pair := range [][2]string{
		{"energy_now", "energy_full"},
		{"charge_now", "charge_full"},
	} {
		now, okNow := parseSysfsInt(readSysfs(path, pair[0]))
		full, okFull := parseSysfsInt(readSysfs(path, pair[1]))
		if okNow && okFull && full > 0 {
			return float64(now) / float64(full) * 100.0, nil
		}
	}
	return 0, fmt.Errorf("battery %s: no capacity, energy or charge readings", filepath.Base(path))
}

// readSysfs returns the trimmed content of dir/name, or "" if unreadable.
func readSysfs(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parseSysfsInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
