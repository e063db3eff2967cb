package sharedevent

import (
	"encoding/binary"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Codec is the polymorphism seam the §9 design note calls for: the
// protocol only ever needs to turn a value into a fixed-size byte image
// and back. The reference TransactionEvent schema (§6) is transported
// with BinaryCodec; applications that want a different payload shape
// supply their own Codec via OpenWithCodec instead of Open.
type Codec[T any] interface {
	// Serialize renders value as a byte image no longer than FixedSize().
	Serialize(value T) ([]byte, error)
	// Deserialize reconstructs a value from a FixedSize()-length image.
	Deserialize(data []byte) (T, error)
	// FixedSize is the Payload Segment's byte size (§6): both peers MUST
	// agree on it, and the core never transports a partial image.
	FixedSize() int
}

// TransactionMessageType enumerates the reference payload's message kinds
// (§6), numbered to match the original SharedEvent C++ wire format for
// compatibility with existing deployments.
type TransactionMessageType int32

const (
	TransactionsAdded   TransactionMessageType = 0
	TransactionsCleared TransactionMessageType = 1
	TransactionsRemoved TransactionMessageType = 2
)

func (t TransactionMessageType) String() string {
	switch t {
	case TransactionsAdded:
		return "Added"
	case TransactionsRemoved:
		return "Removed"
	case TransactionsCleared:
		return "Cleared"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(t))
	}
}

// TransactionEvent is the reference payload record of §6, kept
// wire-compatible with the original deployment's flat layout:
// a 32-bit type, a 64-bit start date, a start-exclusive flag, a 64-bit end
// date, and an end-exclusive flag.
type TransactionEvent struct {
	Type           TransactionMessageType
	StartDate      int64
	StartExclusive bool
	EndDate        int64
	EndExclusive   bool
}

// String renders a TransactionEvent the way the original's
// operator<<(ostream&, TransactionEvent) does: "(Added) [1, 2[".
func (e TransactionEvent) String() string {
	open := "["
	if e.StartExclusive {
		open = "]"
	}
	closeCh := "]"
	if e.EndExclusive {
		closeCh = "["
	}
	return fmt.Sprintf("(%s) %s%d, %d%s", e.Type, open, e.StartDate, e.EndDate, closeCh)
}

// transactionEventWireSize is 4 (type) + 8 (startDate) + 1 (startExclusive)
// + 8 (endDate) + 1 (endExclusive) = 22 bytes, per §6.
const transactionEventWireSize = 4 + 8 + 1 + 8 + 1

// BinaryCodec implements Codec[TransactionEvent] using the flat §6 layout,
// all integers little-endian as the spec requires.
type BinaryCodec struct{}

func (BinaryCodec) FixedSize() int { return transactionEventWireSize }

func (BinaryCodec) Serialize(value TransactionEvent) ([]byte, error) {
	buf := make([]byte, transactionEventWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(value.Type))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(value.StartDate))
	buf[12] = boolByte(value.StartExclusive)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(value.EndDate))
	buf[21] = boolByte(value.EndExclusive)
	return buf, nil
}

func (BinaryCodec) Deserialize(data []byte) (TransactionEvent, error) {
	if len(data) < transactionEventWireSize {
		return TransactionEvent{}, fmt.Errorf("sharedevent: payload truncated (%d bytes, want %d)", len(data), transactionEventWireSize)
	}
	return TransactionEvent{
		Type:           TransactionMessageType(binary.LittleEndian.Uint32(data[0:4])),
		StartDate:      int64(binary.LittleEndian.Uint64(data[4:12])),
		StartExclusive: data[12] != 0,
		EndDate:        int64(binary.LittleEndian.Uint64(data[13:21])),
		EndExclusive:   data[21] != 0,
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// JSONCodec is an example of the §9 polymorphism note put into practice:
// a Codec for arbitrary JSON-serializable payloads, using jsoniter for
// speed the way NVIDIA/aistore's go.mod does in place of encoding/json.
// Because the Payload Segment is fixed-size, the caller must supply an
// upper bound (maxSize) large enough for any value it will serialize; the
// encoded length is stored in the first 4 bytes so Deserialize knows how
// much of the padded segment is real data.
type JSONCodec[T any] struct {
	maxSize int
}

func NewJSONCodec[T any](maxSize int) JSONCodec[T] {
	return JSONCodec[T]{maxSize: maxSize}
}

func (c JSONCodec[T]) FixedSize() int { return 4 + c.maxSize }

func (c JSONCodec[T]) Serialize(value T) ([]byte, error) {
	encoded, err := jsoniter.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("sharedevent: encoding json payload: %w", err)
	}
	if len(encoded) > c.maxSize {
		return nil, fmt.Errorf("sharedevent: json payload of %d bytes exceeds configured max %d", len(encoded), c.maxSize)
	}
	buf := make([]byte, c.FixedSize())
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(encoded)))
	copy(buf[4:], encoded)
	return buf, nil
}

func (c JSONCodec[T]) Deserialize(data []byte) (T, error) {
	var zero T
	if len(data) < 4 {
		return zero, fmt.Errorf("sharedevent: json payload truncated")
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if n < 0 || 4+n > len(data) {
		return zero, fmt.Errorf("sharedevent: json payload length %d out of bounds", n)
	}
	var value T
	if err := jsoniter.Unmarshal(data[4:4+n], &value); err != nil {
		return zero, fmt.Errorf("sharedevent: decoding json payload: %w", err)
	}
	return value, nil
}
