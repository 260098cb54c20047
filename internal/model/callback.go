package model

import (
	"errors"
	"time"
)

// Callback 已上线的 agent 实例
type Callback struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname,omitempty"`
	IP          string    `json:"ip,omitempty"`
	OS          string    `json:"os,omitempty"`
	User        string    `json:"user,omitempty"`
	PID         int       `json:"pid,omitempty"`
	LastCheckin time.Time `json:"last_checkin,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Checkin agent 上报的心跳消息
type Checkin struct {
	CallbackID string `json:"callback_id"`
	Hostname   string `json:"hostname,omitempty"`
	IP         string `json:"ip,omitempty"`
	OS         string `json:"os,omitempty"`
	User       string `json:"user,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Uptime     uint64 `json:"uptime,omitempty"`
}

// Validate 验证 callback 数据
func (c *Callback) Validate() error {
	if c.ID == "" {
		return errors.New("callback id is required")
	}
	return nil
}

// Apply 用心跳内容更新 callback，空字段保持原值
func (c *Callback) Apply(checkin Checkin, at time.Time) {
	if c.ID == "" {
		c.ID = checkin.CallbackID
	}
	if checkin.Hostname != "" {
		c.Hostname = checkin.Hostname
	}
	if checkin.IP != "" {
		c.IP = checkin.IP
	}
	if checkin.OS != "" {
		c.OS = checkin.OS
	}
	if checkin.User != "" {
		c.User = checkin.User
	}
	if checkin.PID != 0 {
		c.PID = checkin.PID
	}
	c.LastCheckin = at
}
