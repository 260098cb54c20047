package info

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// GetUptime 获取系统运行时长，失败返回 0
func GetUptime(ctx context.Context) time.Duration {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// FormatUptime 格式化为 D:HH:MM:SS
// 示例: 3 天 4 小时 5 分 6 秒 → "3:04:05:06"
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	return fmt.Sprintf("%d:%02d:%02d:%02d", days, hours, minutes, seconds)
}
