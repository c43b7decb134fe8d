package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// 序列化格式（小端）：magic(4) version(u32) dim(u32) n(u32) 然后 n*dim 个 float32。
var magic = [4]byte{'P', 'Q', 'F', 'I'}

const formatVersion = 1

const headerSize = 16

// MarshalBinary 序列化索引。
func (i *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize, headerSize+4*i.dim*len(i.vectors))
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(i.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(i.vectors)))
	for _, v := range i.vectors {
		for _, x := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	}
	return out, nil
}

// UnmarshalBinary 从字节恢复索引，覆盖当前内容。
func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return errors.New("vectorindex: truncated header")
	}
	if [4]byte(data[0:4]) != magic {
		return errors.New("vectorindex: bad magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return fmt.Errorf("vectorindex: unsupported format version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	// 先约束 dim 与 n，再计算 4*dim*n，避免伪造的头部导致乘法溢出
	payload := len(data) - headerSize
	switch {
	case dim == 0 && n > 0:
		return fmt.Errorf("vectorindex: %d vectors of dimension 0", n)
	case dim > 0 && n > payload/4/dim:
		return fmt.Errorf("vectorindex: %d vectors of dim %d exceed payload size %d", n, dim, payload)
	}
	if want := 4 * dim * n; payload != want {
		return fmt.Errorf("vectorindex: payload size %d, expected %d", payload, want)
	}

	vectors := make([][]float32, n)
	off := headerSize
	for row := 0; row < n; row++ {
		v := make([]float32, dim)
		for col := 0; col < dim; col++ {
			v[col] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vectors[row] = v
	}
	i.dim = dim
	i.vectors = vectors
	return nil
}
