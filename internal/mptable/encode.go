package mptable

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	specRevision = 4

	pointerSize      = 16
	headerSize       = 44
	processorSize    = 20
	shortEntrySize   = 8
	pointerSignature = "_MP_"
	tableSignature   = "PCMP"

	processorEnabled   = 1 << 0
	processorBootstrap = 1 << 1
	ioapicEnabled      = 1 << 0
	busSubtractive     = 1 << 0
)

// Encode lays the table out for guest memory. tableAddr is the guest
// physical address the configuration table will be written to; the returned
// floating pointer structure points at it.
func Encode(t *Table, tableAddr uint32) (pointer []byte, table []byte, err error) {
	if t == nil {
		return nil, nil, fmt.Errorf("mptable: nil table")
	}
	if len(t.OEMID) > 8 || len(t.ProductID) > 12 {
		return nil, nil, fmt.Errorf("mptable: OEM id %q or product id %q too long", t.OEMID, t.ProductID)
	}

	var base bytes.Buffer
	for _, e := range t.Base {
		if err := encodeEntry(&base, e); err != nil {
			return nil, nil, err
		}
	}
	var ext bytes.Buffer
	for _, e := range t.Extended {
		if err := encodeEntry(&ext, e); err != nil {
			return nil, nil, err
		}
	}

	baseLen := headerSize + base.Len()
	if baseLen > 0xffff || ext.Len() > 0xffff {
		return nil, nil, fmt.Errorf("mptable: table too large (%d base, %d extended bytes)", baseLen, ext.Len())
	}

	header := make([]byte, headerSize)
	copy(header[0:4], tableSignature)
	binary.LittleEndian.PutUint16(header[4:6], uint16(baseLen))
	header[6] = specRevision
	copy(header[8:16], padded(t.OEMID, 8))
	copy(header[16:28], padded(t.ProductID, 12))
	binary.LittleEndian.PutUint16(header[34:36], uint16(len(t.Base)))
	binary.LittleEndian.PutUint32(header[36:40], t.LocalAPICAddress)
	binary.LittleEndian.PutUint16(header[40:42], uint16(ext.Len()))
	header[42] = checksum(ext.Bytes())

	table = make([]byte, 0, baseLen+ext.Len())
	table = append(table, header...)
	table = append(table, base.Bytes()...)
	table[7] = checksum(table[:baseLen])
	table = append(table, ext.Bytes()...)

	pointer = make([]byte, pointerSize)
	copy(pointer[0:4], pointerSignature)
	binary.LittleEndian.PutUint32(pointer[4:8], tableAddr)
	pointer[8] = 1 // length in 16-byte units
	pointer[9] = specRevision
	pointer[10] = checksum(pointer)

	return pointer, table, nil
}

func encodeEntry(buf *bytes.Buffer, e Entry) error {
	switch v := e.(type) {
	case Processor:
		rec := make([]byte, processorSize)
		rec[0] = byte(TypeProcessor)
		rec[1] = v.LocalAPICID
		rec[2] = v.LocalAPICVersion
		if v.Enabled {
			rec[3] |= processorEnabled
		}
		if v.Bootstrap {
			rec[3] |= processorBootstrap
		}
		binary.LittleEndian.PutUint32(rec[4:8], v.Signature)
		binary.LittleEndian.PutUint32(rec[8:12], v.FeatureFlags)
		buf.Write(rec)
	case Bus:
		rec := make([]byte, shortEntrySize)
		rec[0] = byte(TypeBus)
		rec[1] = v.ID
		copy(rec[2:8], padded(string(v.Kind), 6))
		buf.Write(rec)
	case IOAPIC:
		rec := make([]byte, shortEntrySize)
		rec[0] = byte(TypeIOAPIC)
		rec[1] = v.ID
		rec[2] = v.Version
		if v.Enabled {
			rec[3] = ioapicEnabled
		}
		binary.LittleEndian.PutUint32(rec[4:8], v.Address)
		buf.Write(rec)
	case IOInterrupt:
		rec := make([]byte, shortEntrySize)
		rec[0] = byte(TypeIOInterrupt)
		rec[1] = byte(v.Kind)
		binary.LittleEndian.PutUint16(rec[2:4], uint16(v.Polarity)&0x3|(uint16(v.Trigger)&0x3)<<2)
		rec[4] = v.SourceBus
		rec[5] = v.SourceIRQ
		rec[6] = v.DestAPIC
		rec[7] = v.DestPin
		buf.Write(rec)
	case BusHierarchy:
		rec := make([]byte, shortEntrySize)
		rec[0] = byte(TypeBusHierarchy)
		rec[1] = shortEntrySize
		rec[2] = v.BusID
		if v.SubtractiveDecode {
			rec[3] = busSubtractive
		}
		rec[4] = v.ParentBus
		buf.Write(rec)
	default:
		return fmt.Errorf("mptable: cannot encode entry of type %T", e)
	}
	return nil
}

func padded(s string, n int) []byte {
	out := bytes.Repeat([]byte{' '}, n)
	copy(out, s)
	return out
}

func checksum(b []byte) byte {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return byte(0 - sum)
}
