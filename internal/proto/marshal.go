package proto

import "encoding/binary"

// MarshalCommand packs a Command into its 64-byte wire representation.
func MarshalCommand(c *Command) []byte {
	buf := make([]byte, 64)

	buf[0] = c.Opcode
	buf[1] = c.Flags
	binary.LittleEndian.PutUint16(buf[2:4], c.CmdID)
	binary.LittleEndian.PutUint32(buf[4:8], c.NSID)
	// bytes 8:16 reserved
	binary.LittleEndian.PutUint64(buf[16:24], c.MetaPtr)
	binary.LittleEndian.PutUint64(buf[24:32], c.DataPtr0)
	binary.LittleEndian.PutUint64(buf[32:40], c.DataPtr1)
	binary.LittleEndian.PutUint32(buf[40:44], c.Cdw10)
	binary.LittleEndian.PutUint32(buf[44:48], c.Cdw11)
	binary.LittleEndian.PutUint32(buf[48:52], c.Cdw12)
	binary.LittleEndian.PutUint32(buf[52:56], c.Cdw13)
	binary.LittleEndian.PutUint32(buf[56:60], c.Cdw14)
	binary.LittleEndian.PutUint32(buf[60:64], c.Cdw15)

	return buf
}

// UnmarshalCommand unpacks a 64-byte wire representation into a Command.
func UnmarshalCommand(data []byte, c *Command) error {
	if len(data) < 64 {
		return ErrInsufficientData
	}

	c.Opcode = data[0]
	c.Flags = data[1]
	c.CmdID = binary.LittleEndian.Uint16(data[2:4])
	c.NSID = binary.LittleEndian.Uint32(data[4:8])
	c.MetaPtr = binary.LittleEndian.Uint64(data[16:24])
	c.DataPtr0 = binary.LittleEndian.Uint64(data[24:32])
	c.DataPtr1 = binary.LittleEndian.Uint64(data[32:40])
	c.Cdw10 = binary.LittleEndian.Uint32(data[40:44])
	c.Cdw11 = binary.LittleEndian.Uint32(data[44:48])
	c.Cdw12 = binary.LittleEndian.Uint32(data[48:52])
	c.Cdw13 = binary.LittleEndian.Uint32(data[52:56])
	c.Cdw14 = binary.LittleEndian.Uint32(data[56:60])
	c.Cdw15 = binary.LittleEndian.Uint32(data[60:64])

	return nil
}

// MarshalCompletion packs a Completion into its 16-byte wire representation.
func MarshalCompletion(c *Completion) []byte {
	buf := make([]byte, 16)

	binary.LittleEndian.PutUint32(buf[0:4], c.CmdSpecific)
	binary.LittleEndian.PutUint16(buf[8:10], c.SQHead)
	binary.LittleEndian.PutUint16(buf[10:12], c.SQID)
	binary.LittleEndian.PutUint16(buf[12:14], c.CmdID)
	binary.LittleEndian.PutUint16(buf[14:16], c.Status)

	return buf
}

// UnmarshalCompletion unpacks a 16-byte wire representation into a Completion.
func UnmarshalCompletion(data []byte, c *Completion) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}

	c.CmdSpecific = binary.LittleEndian.Uint32(data[0:4])
	c.SQHead = binary.LittleEndian.Uint16(data[8:10])
	c.SQID = binary.LittleEndian.Uint16(data[10:12])
	c.CmdID = binary.LittleEndian.Uint16(data[12:14])
	c.Status = binary.LittleEndian.Uint16(data[14:16])

	return nil
}

// MarshalError is returned for malformed wire data.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
)
