package wire

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
//                              负载结构
// ============================================================================

// Announce 系统公告
type Announce struct {
	SysName  string
	SysType  string
	Owner    uint16
	Lat      float64 // 弧度
	Lon      float64 // 弧度
	Height   float64
	Services string // 以 ';' 分隔的服务 URI
}

// EntityList 操作
const (
	EntityListReport uint8 = 0
	EntityListQuery  uint8 = 1
)

// EntityList 实体列表报告或查询
type EntityList struct {
	Op   uint8
	List map[string]uint8
}

// EntityInfo 单个实体描述
type EntityInfo struct {
	ID        uint8
	Label     string
	Component string
}

// MessagePart 一个分片
//
// Group 在同一来源内标识一次拆分，Offset 为该片在原帧中的字节偏移。
type MessagePart struct {
	Group  uint16
	Offset uint32
	Final  bool
	Data   []byte
}

// End 该片覆盖的区间终点（不含）
func (p MessagePart) End() uint32 {
	return p.Offset + uint32(len(p.Data))
}

// ============================================================================
//                              编码
// ============================================================================

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Marshal 编码
func (a *Announce) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, a.SysName)
	b = appendString(b, 2, a.SysType)
	// owner 可能为 0，始终写出
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Owner))
	b = appendDouble(b, 4, a.Lat)
	b = appendDouble(b, 5, a.Lon)
	b = appendDouble(b, 6, a.Height)
	b = appendString(b, 7, a.Services)
	return b
}

// Marshal 编码；列表按名称排序后写为 "name=id;..."
func (e *EntityList) Marshal() []byte {
	var b []byte
	b = appendUint(b, 1, uint64(e.Op))
	b = appendString(b, 2, formatEntityList(e.List))
	return b
}

// Marshal 编码
func (e *EntityInfo) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.ID))
	b = appendString(b, 2, e.Label)
	b = appendString(b, 3, e.Component)
	return b
}

// Marshal 编码
func (p *MessagePart) Marshal() []byte {
	var b []byte
	b = appendUint(b, 1, uint64(p.Group))
	b = appendUint(b, 2, uint64(p.Offset))
	if p.Final {
		b = appendUint(b, 3, 1)
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Data)
	return b
}

// ============================================================================
//                              解码
// ============================================================================

type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

// walk 逐字段解析，未知字段跳过
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedPayload, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalAnnounce 解码 Announce
func UnmarshalAnnounce(b []byte) (*Announce, error) {
	a := &Announce{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			a.SysName = string(f.b)
		case 2:
			a.SysType = string(f.b)
		case 3:
			a.Owner = uint16(f.u)
		case 4:
			a.Lat = math.Float64frombits(f.u)
		case 5:
			a.Lon = math.Float64frombits(f.u)
		case 6:
			a.Height = math.Float64frombits(f.u)
		case 7:
			a.Services = string(f.b)
		}
		return nil
	})
	return a, err
}

// UnmarshalEntityList 解码 EntityList
func UnmarshalEntityList(b []byte) (*EntityList, error) {
	e := &EntityList{}
	var list string
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			e.Op = uint8(f.u)
		case 2:
			list = string(f.b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.List, err = parseEntityList(list)
	return e, err
}

// UnmarshalEntityInfo 解码 EntityInfo
func UnmarshalEntityInfo(b []byte) (*EntityInfo, error) {
	e := &EntityInfo{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			e.ID = uint8(f.u)
		case 2:
			e.Label = string(f.b)
		case 3:
			e.Component = string(f.b)
		}
		return nil
	})
	return e, err
}

// UnmarshalMessagePart 解码 MessagePart
func UnmarshalMessagePart(b []byte) (*MessagePart, error) {
	p := &MessagePart{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			p.Group = uint16(f.u)
		case 2:
			p.Offset = uint32(f.u)
		case 3:
			p.Final = f.u != 0
		case 4:
			p.Data = append([]byte(nil), f.b...)
		}
		return nil
	})
	return p, err
}

func formatEntityList(list map[string]uint8) string {
	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(int(list[name])))
	}
	return sb.String()
}

func parseEntityList(s string) (map[string]uint8, error) {
	out := make(map[string]uint8)
	for _, item := range strings.Split(s, ";") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		name, id, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%w: entity %q", ErrMalformedPayload, item)
		}
		v, err := strconv.ParseUint(strings.TrimSpace(id), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: entity %q", ErrMalformedPayload, item)
		}
		out[strings.TrimSpace(name)] = uint8(v)
	}
	return out, nil
}
