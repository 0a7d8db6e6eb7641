package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince converts a user-facing range ("today", "7d", "2w", "2026-01-15",
// "all") into a date floor. "all" and "" mean no floor and return "".
func ParseSince(since string) (string, error) {
	if since == "" || since == "all" {
		return "", nil
	}

	now := time.Now()

	if since == "today" {
		return now.Format(DateLayout), nil
	}

	if strings.HasSuffix(since, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(since, "d"))
		if err != nil {
			return "", fmt.Errorf("invalid days format %q", since)
		}
		return now.AddDate(0, 0, -days).Format(DateLayout), nil
	}

	if strings.HasSuffix(since, "w") {
		weeks, err := strconv.Atoi(strings.TrimSuffix(since, "w"))
		if err != nil {
			return "", fmt.Errorf("invalid weeks format %q", since)
		}
		return now.AddDate(0, 0, -7*weeks).Format(DateLayout), nil
	}

	if d, err := time.Parse(DateLayout, since); err == nil {
		return d.Format(DateLayout), nil
	}

	return "", fmt.Errorf("invalid since format %q: use 'today', '7d', '2w', or 'YYYY-MM-DD'", since)
}

// ResolveAspectRatio maps a friendly ratio name to SDXL-native dimensions
// (~1M pixels).
func ResolveAspectRatio(ratio string) (width, height int64, ok bool) {
	switch ratio {
	case "square", "1:1":
		return 1024, 1024, true
	case "portrait", "2:3":
		return 832, 1216, true
	case "landscape", "3:2":
		return 1216, 832, true
	case "wide", "16:9":
		return 1344, 768, true
	case "tall", "9:16":
		return 768, 1344, true
	case "4:3":
		return 1152, 896, true
	case "3:4":
		return 896, 1152, true
	}
	return 0, 0, false
}
