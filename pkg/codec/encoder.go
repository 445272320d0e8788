package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// 单帧上限，防止对端发送异常长度导致一次性分配过多内存
const maxFrameSize = 1 << 20

var (
	encodeOnce sync.Once
	encodeMode cbor.EncMode
	encodeErr  error
)

func GetEncoder() (cbor.EncMode, error) {
	encodeOnce.Do(func() {
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeRFC3339Nano
		encodeMode, encodeErr = opts.EncMode()
	})

	return encodeMode, encodeErr
}

// WriteFrame 编码 v 并以 8 字节大端长度前缀写入 w
func WriteFrame(w io.Writer, v any) error {
	encoder, err := GetEncoder()
	if err != nil {
		return err
	}

	data, err := encoder.Marshal(v)
	if err != nil {
		return err
	}

	size := make([]byte, 8)
	binary.BigEndian.PutUint64(size, uint64(len(data)))

	if _, err = w.Write(size); err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// ReadFrame 读取一帧并解码到 v
func ReadFrame(r io.Reader, v any) error {
	size := make([]byte, 8)
	if _, err := io.ReadFull(r, size); err != nil {
		return err
	}

	length := binary.BigEndian.Uint64(size)
	if length > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	return cbor.Unmarshal(data, v)
}
