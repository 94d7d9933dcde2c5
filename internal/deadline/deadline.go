package deadline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(m|min|h|hr|d|day|w|week)s?$`)

var unitSeconds = map[string]float64{
	"m": 60, "min": 60,
	"h": 3600, "hr": 3600,
	"d": 86400, "day": 86400,
	"w": 604800, "week": 604800,
}

type InvalidDeadlineError struct {
	Input string
}

func (e *InvalidDeadlineError) Error() string {
	return fmt.Sprintf("invalid deadline format %q, use e.g. \"4h\", \"30m\", \"2d\", or a unix timestamp", e.Input)
}

// Parse 把"4h"、"30m"、"2d"这类相对时长或unix时间戳解析为绝对unix秒。
// 相对时长基于当前时间计算。
func Parse(deadline string) (int64, error) {
	return ParseAt(deadline, time.Now())
}

// ParseAt 同Parse，但相对时长以now为基准，便于测试
func ParseAt(deadline string, now time.Time) (int64, error) {
	input := strings.ToLower(strings.TrimSpace(deadline))

	match := durationPattern.FindStringSubmatch(input)
	if match == nil {
		// 尝试按unix时间戳解析
		n, err := strconv.ParseInt(input, 10, 64)
		if err == nil && n > 1_000_000_000 {
			return n, nil
		}
		return 0, &InvalidDeadlineError{Input: deadline}
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, &InvalidDeadlineError{Input: deadline}
	}

	seconds := int64(value * unitSeconds[match[2]])
	return now.Unix() + seconds, nil
}
