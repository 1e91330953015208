package wire

import (
	"fmt"
	"sync"
)

// 核心使用的控制消息
const (
	KindEntityInfo  = "EntityInfo"
	KindEntityList  = "EntityList"
	KindHeartbeat   = "Heartbeat"
	KindAnnounce    = "Announce"
	KindMessagePart = "MessagePart"
)

// Catalog 消息名称与编号的双向映射
type Catalog struct {
	mu     sync.RWMutex
	byKind map[string]uint16
	byID   map[uint16]string
}

// NewCatalog 创建只含控制消息的目录
func NewCatalog() *Catalog {
	c := &Catalog{
		byKind: make(map[string]uint16),
		byID:   make(map[uint16]string),
	}
	for kind, id := range map[string]uint16{
		KindEntityInfo:  3,
		KindEntityList:  5,
		KindHeartbeat:   150,
		KindAnnounce:    151,
		KindMessagePart: 877,
	} {
		c.byKind[kind] = id
		c.byID[id] = kind
	}
	return c
}

// Register 注册应用消息；重复注册相同映射是无操作
func (c *Catalog) Register(kind string, id uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byKind[kind]; ok {
		if old == id {
			return nil
		}
		return fmt.Errorf("%w: %s is %d", ErrKindConflict, kind, old)
	}
	if old, ok := c.byID[id]; ok {
		return fmt.Errorf("%w: %d is %s", ErrKindConflict, id, old)
	}
	c.byKind[kind] = id
	c.byID[id] = kind
	return nil
}

// ID 名称 -> 编号
func (c *Catalog) ID(kind string) (uint16, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byKind[kind]
	return id, ok
}

// Kind 编号 -> 名称
func (c *Catalog) Kind(id uint16) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.byID[id]
	return k, ok
}
