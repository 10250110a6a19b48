package images

import (
	"encoding/binary"
	"errors"
)

var (
	ErrInvalidJPEG  = errors.New("invalid JPEG header")
	ErrShortSegment = errors.New("short segment length")
	ErrNoQuantTable = errors.New("no luminance quantization table")
)

// Standard luminance quantization table in zig-zag order, quality 50.
var stdLuminance = [64]int{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

// JPEGQuality estimates quality level (1..100) JPEG was encoded with by
// comparing its luminance table against the standard one.
func JPEGQuality(data []byte) (int, error) {
	table, err := luminanceTable(data)
	if err != nil {
		return 0, err
	}

	var sum, std int
	for i := range table {
		sum += table[i]
		std += stdLuminance[i]
	}
	scale := float64(sum) * 100 / float64(std)

	var q float64
	if scale <= 100 {
		q = (200 - scale) / 2
	} else {
		q = 5000 / scale
	}
	return min(max(int(q+0.5), 1), 100), nil
}

func luminanceTable(data []byte) ([64]int, error) {
	var table [64]int

	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return table, ErrInvalidJPEG
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return table, ErrInvalidJPEG
		}
		marker := data[pos+1]
		if marker == 0xFF {
			pos++ // fill byte
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		length := int(binary.BigEndian.Uint16(data[pos+2:]))
		if length < 2 || pos+2+length > len(data) {
			return table, ErrShortSegment
		}
		if marker == 0xDB {
			seg := data[pos+4 : pos+2+length]
			for len(seg) > 0 {
				precision, id := seg[0]>>4, seg[0]&0x0F
				size := 64
				if precision != 0 {
					size = 128
				}
				if len(seg) < 1+size {
					return table, ErrShortSegment
				}
				if id == 0 {
					for i := range table {
						if precision != 0 {
							table[i] = int(binary.BigEndian.Uint16(seg[1+2*i:]))
						} else {
							table[i] = int(seg[1+i])
						}
					}
					return table, nil
				}
				seg = seg[1+size:]
			}
		}
		pos += 2 + length
	}
	return table, ErrNoQuantTable
}
