package transcode

import (
	"bytes"
	"encoding/binary"
)

func writeLE[T uint16 | uint32 | int16](buf *bytes.Buffer, v T) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.LittleEndian, v)
}
