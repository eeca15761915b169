package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var naturalTime = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince converts a --since value into whole hours, rounding up.
//
// Accepted forms: a number of hours ("24"), a Go duration ("90m", "36h"),
// or a natural-language point in time ("yesterday", "last monday").
// "all" and "" mean all time and return 0.
func parseSince(value string, now time.Time) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "all" {
		return 0, nil
	}

	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("--since cannot be negative")
		}
		return n, nil
	}

	if d, err := time.ParseDuration(value); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("--since must be a positive duration")
		}
		return int(math.Ceil(d.Hours())), nil
	}

	res, err := naturalTime.Parse(value, now)
	if err != nil {
		return 0, fmt.Errorf("failed to parse --since %q: %w", value, err)
	}
	if res == nil {
		return 0, fmt.Errorf("unrecognized --since %q", value)
	}
	if !res.Time.Before(now) {
		return 0, fmt.Errorf("--since %q is not in the past", value)
	}
	return int(math.Ceil(now.Sub(res.Time).Hours())), nil
}
