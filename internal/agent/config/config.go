package config

import (
	"os"
	"strconv"
	"time"
)

// 传输层类型
const (
	TRANSPORT_MQTT   = "mqtt"
	TRANSPORT_VALKEY = "valkey"
)

// Config Agent 配置
type Config struct {
	// Callback ID（可选，默认使用网卡 MAC）
	CallbackID string
	// 传输层：mqtt 或 valkey
	Transport string
	// MQTT Broker 地址
	MQTTBroker string
	// Valkey 地址
	ValkeyAddr string
	// 日志级别
	LogLevel string
	// 心跳间隔（秒）
	CheckinInterval int
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	// 解析心跳间隔，默认 30 秒
	checkinInterval := parseInt(getEnv("ATHENA_CHECKIN_INTERVAL", "30"), 30)
	if checkinInterval < 10 {
		checkinInterval = 10 // 最小 10 秒
	}

	transport := getEnv("ATHENA_TRANSPORT", TRANSPORT_MQTT)
	if transport != TRANSPORT_VALKEY {
		transport = TRANSPORT_MQTT
	}

	return &Config{
		CallbackID:      getEnv("ATHENA_CALLBACK_ID", ""),
		Transport:       transport,
		MQTTBroker:      getEnv("ATHENA_MQTT_BROKER", "tcp://localhost:1883"),
		ValkeyAddr:      getEnv("ATHENA_VALKEY_ADDR", "localhost:6379"),
		LogLevel:        getEnv("ATHENA_LOG_LEVEL", "info"),
		CheckinInterval: checkinInterval,
	}
}

// GetCheckinInterval 获取心跳间隔时间
func (c *Config) GetCheckinInterval() time.Duration {
	return time.Duration(c.CheckinInterval) * time.Second
}

// parseInt 解析整数，失败返回默认值
func parseInt(s string, defaultVal int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultVal
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
