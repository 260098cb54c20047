package server

import (
	"os"
	"strconv"
	"strings"
)

const (
	TRANSPORT_MQTT   = "mqtt"
	TRANSPORT_VALKEY = "valkey"
)

// Config 服务配置
type Config struct {
	// HTTP 服务地址
	HTTPAddr string
	// 传输方式：mqtt 或 valkey
	Transport string
	// MQTT Broker 地址
	MQTTBroker string
	// Valkey 地址
	ValkeyAddr string
	// 数据库路径
	DBPath string
	// 日志级别
	LogLevel string
	// 入站消息缓冲大小
	MsgBufferSize int
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	transport := strings.ToLower(getEnv("ATHENA_TRANSPORT", TRANSPORT_MQTT))
	if transport != TRANSPORT_VALKEY {
		transport = TRANSPORT_MQTT
	}

	msgBufferSize := parseInt(getEnv("ATHENA_MSG_BUFFER_SIZE", "100"), 100)
	if msgBufferSize <= 0 {
		msgBufferSize = 100
	}

	return &Config{
		HTTPAddr:      getEnv("ATHENA_HTTP_ADDR", ":8080"),
		Transport:     transport,
		MQTTBroker:    getEnv("ATHENA_MQTT_BROKER", "tcp://localhost:1883"),
		ValkeyAddr:    getEnv("ATHENA_VALKEY_ADDR", "localhost:6379"),
		DBPath:        getEnv("ATHENA_DB_PATH", "/var/lib/athena/athena.db"),
		LogLevel:      getEnv("ATHENA_LOG_LEVEL", "info"),
		MsgBufferSize: msgBufferSize,
	}
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
