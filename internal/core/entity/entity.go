// Package entity 管理本机实体
//
// 实体是系统内部的逻辑发送方（如 Daemon、Navigation）。注册后得到
// 的句柄附加到出站消息的源实体字段，并在对方查询时随实体列表报告。
// 编号从 1 开始分配，255 保留为默认实体。
package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

var (
	// ErrDuplicate 名称已注册
	ErrDuplicate = errors.New("entity: name already registered")
	// ErrEmptyName 名称为空
	ErrEmptyName = errors.New("entity: empty name")
	// ErrExhausted 编号用尽
	ErrExhausted = errors.New("entity: no free entity id")
)

// Handle 已注册的实体
type Handle struct {
	ID   uint8
	Name string
}

// Registry 本机实体表
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Handle
	next   uint8
}

// NewRegistry 创建实体表
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handle), next: 1}
}

// Register 注册实体
func (r *Registry) Register(name string) (Handle, error) {
	if name == "" {
		return Handle{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	if r.next == types.DefaultEntity {
		return Handle{}, ErrExhausted
	}

	h := Handle{ID: r.next, Name: name}
	r.byName[name] = h
	r.next++
	return h, nil
}

// Lookup 按名称查找
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// List 名称到编号，用于实体列表报告
func (r *Registry) List() map[string]uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint8, len(r.byName))
	for name, h := range r.byName {
		out[name] = h.ID
	}
	return out
}

// Handles 按编号排序
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	out := make([]Handle, 0, len(r.byName))
	for _, h := range r.byName {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
