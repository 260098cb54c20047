package info

import (
	"context"
	"net"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// GetHostname 获取主机名
func GetHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// GetIP 获取当前主机的 IP 地址
// 返回第一个非 loopback 的 IPv4 地址
func GetIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP == nil {
			continue
		}

		if ipNet.IP.IsLoopback() {
			continue
		}

		if ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}

	return ""
}

// GetUser 获取当前用户名
func GetUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// GetOS 获取操作系统描述，如 "linux ubuntu 22.04"
func GetOS(ctx context.Context) string {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return runtime.GOOS
	}

	return strings.TrimSpace(strings.Join([]string{hi.OS, hi.Platform, hi.PlatformVersion}, " "))
}
