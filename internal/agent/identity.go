package agent

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// ResolveCallbackID 确定 agent 的 callback ID
// 优先使用环境变量，其次使用第一个有效网卡的 MAC，最后生成随机 ID
func ResolveCallbackID(envID string) (string, error) {
	if envID != "" {
		if !isValidCallbackID(envID) {
			return "", fmt.Errorf("invalid callback id in environment: %s", envID)
		}
		return envID, nil
	}

	if mac, err := firstMACAddress(); err == nil {
		return mac, nil
	}

	return uuid.NewString(), nil
}

// isValidCallbackID callback ID 会出现在主题中，不能包含分隔符和通配符
func isValidCallbackID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, "/:+*#? \t\n")
}

// firstMACAddress 遍历网络接口，返回第一个有效接口的 MAC
func firstMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		// 跳过 loopback
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		// 跳过没有启用的接口
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		if len(iface.HardwareAddr) == 0 {
			continue
		}

		mac := normalizeMAC(iface.HardwareAddr.String())
		if isValidMAC(mac) {
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid network interface found")
}

// normalizeMAC 标准化 MAC 地址为小写、无分隔符格式
func normalizeMAC(mac string) string {
	result := make([]byte, 0, 12)
	for _, c := range strings.ToLower(mac) {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			result = append(result, byte(c))
		}
	}
	return string(result)
}

// isValidMAC 标准化后的 MAC 应该是 12 位十六进制字符
func isValidMAC(mac string) bool {
	return len(mac) == 12 && mac != "000000000000"
}
