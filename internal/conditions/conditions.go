// Package conditions renders the "Current Conditions" block that agents
// receive in their system prompt. Relative dates in user requests
// ("tomorrow at 2pm") resolve against it, so it always states today's
// date in the same YYYY-MM-DD form the calendar tools accept.
package conditions

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/khariha/ferris-wheel/internal/buildinfo"
)

// Location resolves an IANA timezone name. Empty or unknown names fall
// back to the system local zone; ok reports whether timezone was used.
func Location(timezone string) (loc *time.Location, ok bool) {
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			return parsed, true
		}
	}
	return time.Local, false
}

// CurrentConditions renders the block for the current time.
func CurrentConditions(timezone string) string {
	return Render(time.Now(), timezone)
}

// Render renders the block for now, converted to timezone.
func Render(now time.Time, timezone string) string {
	var sb strings.Builder

	sb.WriteString("# Current Conditions\n\n")

	loc, resolved := Location(timezone)
	now = now.In(loc)
	zoneName, _ := now.Zone()

	// Format: 2026-10-17 (Saturday)
	fmt.Fprintf(&sb, "**Date:** %s (%s)\n", now.Format("2006-01-02"), now.Weekday())
	fmt.Fprintf(&sb, "**Tomorrow:** %s\n", now.AddDate(0, 0, 1).Format("2006-01-02"))

	sb.WriteString("**Time:** ")
	sb.WriteString(now.Format("15:04 "))
	sb.WriteString(zoneName)
	if resolved && timezone != zoneName {
		sb.WriteString(" (")
		sb.WriteString(timezone)
		sb.WriteString(")")
	}
	sb.WriteString("\n")

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	fmt.Fprintf(&sb, "**Host:** %s (%s/%s, %s)\n", hostname, runtime.GOOS, runtime.GOARCH, detectEnvironment())
	fmt.Fprintf(&sb, "**Ferris Wheel:** %s (%s@%s)\n", buildinfo.Version, buildinfo.GitCommit, buildinfo.GitBranch)
	fmt.Fprintf(&sb, "**Uptime:** %s", formatUptime(buildinfo.Uptime()))

	return sb.String()
}

// detectEnvironment returns "container" or "bare metal".
func detectEnvironment() string {
	if runtime.GOOS == "linux" {
		if _, err := os.Stat("/.dockerenv"); err == nil {
			return "container"
		}
		if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
			content := string(data)
			if strings.Contains(content, "docker") ||
				strings.Contains(content, "lxc") ||
				strings.Contains(content, "kubepods") {
				return "container"
			}
		}
		if os.Getenv("container") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			return "container"
		}
	}
	return "bare metal"
}

// formatUptime formats a duration as a human-readable uptime string.
// Examples: "4h 23m", "2d 5h", "45m", "30s".
func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
