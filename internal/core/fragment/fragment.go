// Package fragment 实现 MessagePart 分片的重组与拆分
//
// 分片以 (来源系统, 分组号) 为键缓存。收到终片且 [0, 终片末尾) 区间被
// 连续覆盖时，拼接出的原始帧被解码并恰好输出一次。未完成的分组在最后一个
// 分片到达 TTL 之后被淘汰，分组总数受 LRU 上限约束。
//
// 已输出的分组留下每个分片的指纹。与指纹一致的分片是迟到的重复，被忽略；
// 不一致说明分组号已被新消息复用（对端重启或计数回绕），旧记录被丢弃。
package fragment

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/fragment")

// maxFrame 单帧上限
const maxFrame = wire.HeaderSize + wire.MaxPayload + wire.FooterSize

var (
	// ErrTooLarge 终片声明的长度超过单帧上限
	ErrTooLarge = errors.New("fragment: reassembled frame too large")
	// ErrInconsistentFinal 同一分组出现两个不同位置的终片
	ErrInconsistentFinal = errors.New("fragment: inconsistent final fragment")
)

// DecodeFunc 将拼接出的帧解码为消息
type DecodeFunc func(frame []byte) (*types.Message, error)

// Config 重组参数
type Config struct {
	TTL       time.Duration
	MaxGroups int
}

type groupKey struct {
	src   types.PeerID
	group uint16
}

// tombstone 已输出分组的分片指纹
type tombstone struct {
	total uint32
	parts map[uint32]uint64
}

// duplicate 分片与已输出分组中同一位置的分片完全一致
func (t *tombstone) duplicate(part *wire.MessagePart) bool {
	if part.Final && part.End() != t.total {
		return false
	}
	sum, ok := t.parts[part.Offset]
	return ok && sum == xxhash.Sum64(part.Data)
}

type group struct {
	parts map[uint32][]byte
	final bool
	total uint32
}

// Reassembler 分片重组器，并发安全
type Reassembler struct {
	mu      sync.Mutex
	pending *expirable.LRU[groupKey, *group]
	// emitted 已输出分组的墓碑，防止迟到的重复分片再次输出
	emitted *expirable.LRU[groupKey, *tombstone]
	decode  DecodeFunc
}

// New 创建重组器
func New(cfg Config, decode DecodeFunc) *Reassembler {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = 1024
	}

	onEvict := func(k groupKey, g *group) {
		if !g.complete() {
			log.Debug("淘汰未完成的分组", "src", k.src.String(), "group", k.group, "parts", len(g.parts))
		}
	}
	return &Reassembler{
		pending: expirable.NewLRU[groupKey, *group](cfg.MaxGroups, onEvict, cfg.TTL),
		emitted: expirable.NewLRU[groupKey, *tombstone](cfg.MaxGroups, nil, cfg.TTL),
		decode:  decode,
	}
}

// Offer 接收一个分片
//
// 分组完成时返回解码后的消息；未完成或重复时返回 nil, nil。
// 解码失败时分组被丢弃并返回错误。
func (r *Reassembler) Offer(src types.PeerID, part *wire.MessagePart) (*types.Message, error) {
	k := groupKey{src: src, group: part.Group}

	r.mu.Lock()
	if t, ok := r.emitted.Peek(k); ok {
		if t.duplicate(part) {
			r.mu.Unlock()
			return nil, nil
		}
		log.Debug("分组号被新消息复用", "src", src.String(), "group", part.Group)
		r.emitted.Remove(k)
	}

	g, ok := r.pending.Get(k)
	if !ok {
		g = &group{parts: make(map[uint32][]byte)}
	}

	if part.Final {
		end := part.End()
		if g.final && g.total != end {
			r.pending.Remove(k)
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: group %d of %s", ErrInconsistentFinal, part.Group, src)
		}
		if end > maxFrame {
			r.pending.Remove(k)
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, end)
		}
		g.final, g.total = true, end
	}
	g.parts[part.Offset] = part.Data

	if !g.complete() {
		// Add 刷新 TTL
		r.pending.Add(k, g)
		r.mu.Unlock()
		return nil, nil
	}

	r.pending.Remove(k)
	r.emitted.Add(k, g.fingerprint())
	frame := g.assemble()
	r.mu.Unlock()

	msg, err := r.decode(frame)
	if err != nil {
		return nil, fmt.Errorf("decode reassembled group %d of %s: %w", part.Group, src, err)
	}
	return msg, nil
}

// Pending 未完成的分组数
func (r *Reassembler) Pending() int {
	return r.pending.Len()
}

// complete 已有终片且 [0, total) 被连续覆盖
func (g *group) complete() bool {
	if !g.final {
		return false
	}

	offsets := g.sortedOffsets()
	var covered uint32
	for _, off := range offsets {
		if off > covered {
			return false
		}
		if end := off + uint32(len(g.parts[off])); end > covered {
			covered = end
		}
		if covered >= g.total {
			return true
		}
	}
	return covered >= g.total
}

func (g *group) fingerprint() *tombstone {
	t := &tombstone{total: g.total, parts: make(map[uint32]uint64, len(g.parts))}
	for off, data := range g.parts {
		t.parts[off] = xxhash.Sum64(data)
	}
	return t
}

func (g *group) assemble() []byte {
	buf := make([]byte, g.total)
	for _, off := range g.sortedOffsets() {
		if off < g.total {
			copy(buf[off:], g.parts[off])
		}
	}
	return buf
}

func (g *group) sortedOffsets() []uint32 {
	offsets := make([]uint32, 0, len(g.parts))
	for off := range g.parts {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// Split 将一帧拆为不超过 chunk 字节的分片
func Split(frame []byte, group uint16, chunk int) []*wire.MessagePart {
	if chunk <= 0 {
		chunk = len(frame)
	}

	var parts []*wire.MessagePart
	for off := 0; off < len(frame); off += chunk {
		end := off + chunk
		if end > len(frame) {
			end = len(frame)
		}
		parts = append(parts, &wire.MessagePart{
			Group:  group,
			Offset: uint32(off),
			Final:  end == len(frame),
			Data:   frame[off:end],
		})
	}
	return parts
}
