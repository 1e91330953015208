package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

// 帧常量
const (
	SyncWord   uint16 = 0xFE54
	HeaderSize        = 20
	FooterSize        = 2
	MaxPayload        = math.MaxUint16
)

// Codec 帧编解码器
type Codec struct {
	catalog *Catalog
}

// NewCodec 创建编解码器
func NewCodec(catalog *Catalog) *Codec {
	return &Codec{catalog: catalog}
}

// Catalog 返回使用的目录
func (c *Codec) Catalog() *Catalog {
	return c.catalog
}

// Encode 编码一帧（小端）
func (c *Codec) Encode(m *types.Message) ([]byte, error) {
	id, ok := c.catalog.ID(m.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
	if len(m.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(m.Payload))
	}

	le := binary.LittleEndian
	buf := make([]byte, HeaderSize+len(m.Payload)+FooterSize)
	le.PutUint16(buf[0:], SyncWord)
	le.PutUint16(buf[2:], id)
	le.PutUint16(buf[4:], uint16(len(m.Payload)))
	le.PutUint64(buf[6:], math.Float64bits(m.Header.Timestamp))
	le.PutUint16(buf[14:], uint16(m.Header.Src))
	buf[16] = m.Header.SrcEntity
	le.PutUint16(buf[17:], uint16(m.Header.Dst))
	buf[19] = m.Header.DstEntity
	copy(buf[HeaderSize:], m.Payload)

	n := HeaderSize + len(m.Payload)
	le.PutUint16(buf[n:], crc16(0, buf[:n]))
	return buf, nil
}

// Decode 解码恰好一帧
func (c *Codec) Decode(frame []byte) (*types.Message, error) {
	size, order, err := FrameSize(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < size {
		return nil, ErrShortFrame
	}

	n := size - FooterSize
	if got, want := crc16(0, frame[:n]), order.Uint16(frame[n:]); got != want {
		return nil, fmt.Errorf("%w: %04x != %04x", ErrBadChecksum, got, want)
	}

	id := order.Uint16(frame[2:])
	kind, ok := c.catalog.Kind(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownKind, id)
	}

	m := &types.Message{
		Header: types.Header{
			Timestamp: math.Float64frombits(order.Uint64(frame[6:])),
			Src:       types.PeerID(order.Uint16(frame[14:])),
			SrcEntity: frame[16],
			Dst:       types.PeerID(order.Uint16(frame[17:])),
			DstEntity: frame[19],
		},
		Kind:    kind,
		Payload: append([]byte(nil), frame[HeaderSize:n]...),
	}
	return m, nil
}

// FrameSize 由帧头求整帧长度与字节序
func FrameSize(header []byte) (int, binary.ByteOrder, error) {
	if len(header) < HeaderSize {
		return 0, nil, ErrShortFrame
	}

	var order binary.ByteOrder
	switch binary.LittleEndian.Uint16(header) {
	case SyncWord:
		order = binary.LittleEndian
	case 0x54FE:
		order = binary.BigEndian
	default:
		return 0, nil, ErrBadSync
	}
	return HeaderSize + int(order.Uint16(header[4:])) + FooterSize, order, nil
}

// ReadFrame 从流中读取一帧原始字节
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	size, _, err := FrameSize(head)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	copy(frame, head)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
