package gguf

// dequantFunc dequantizes one block of quantized data into float32. src
// holds exactly one block's raw bytes; dst receives up to n outputs
// (n <= the type's BlockSize()), so a final partial block can terminate
// mid-block without writing past a tensor's true element count, per the
// boundary case in §4.5.
type dequantFunc func(src []byte, dst []float32, n int)

// GetDequantFunc returns the dequantization function for the given
// tensor type. Only Q8_0, Q4_0, Q4_1, Q2_K, Q4_K, and Q6_K have decoders;
// every other quantized type (Q3_K, Q5_0, Q5_1, Q5_K, Q8_1, Q8_K, the
// IQ family, and plain integer/F64 types) is registered in the type
// table for sizing purposes only and fails here with
// ErrUnsupportedType.
func GetDequantFunc(t TensorType) (dequantFunc, error) {
	switch t {
	case TensorTypeQ8_0:
		return dequantQ8_0, nil
	case TensorTypeQ4_0:
		return dequantQ4_0, nil
	case TensorTypeQ4_1:
		return dequantQ4_1, nil
	case TensorTypeQ2_K:
		return dequantQ2_K, nil
	case TensorTypeQ4_K:
		return dequantQ4_K, nil
	case TensorTypeQ6_K:
		return dequantQ6_K, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// dequantQ8_0 dequantizes a Q8_0 block (34 bytes -> up to 32 values).
// Format: f16 scale (2 bytes) + 32 int8 quant values. dst[i] = scale *
// int8(qs[i]).
func dequantQ8_0(src []byte, dst []float32, n int) {
	d := HalfToF32(leUint16(src[0:2]))
	for j := 0; j < n; j++ {
		dst[j] = d * float32(int8(src[2+j]))
	}
}

// dequantQ4_0 dequantizes a Q4_0 block (18 bytes -> up to 32 values).
// Format: f16 scale (2 bytes) + 16 bytes of packed nibbles. Low nibbles
// give the first 16 values, high nibbles the last 16, each offset by -8.
func dequantQ4_0(src []byte, dst []float32, n int) {
	d := HalfToF32(leUint16(src[0:2]))
	qs := src[2:]
	for j := 0; j < n && j < 16; j++ {
		dst[j] = float32(int(qs[j]&0x0F)-8) * d
	}
	for j := 16; j < n; j++ {
		dst[j] = float32(int(qs[j-16]>>4)-8) * d
	}
}

// dequantQ4_1 dequantizes a Q4_1 block (20 bytes -> up to 32 values).
// Format: f16 scale (2) + f16 min (2) + 16 bytes of packed nibbles.
// dst[i] = nibble*scale + min, no -8 offset.
func dequantQ4_1(src []byte, dst []float32, n int) {
	d := HalfToF32(leUint16(src[0:2]))
	m := HalfToF32(leUint16(src[2:4]))
	qs := src[4:]
	for j := 0; j < n && j < 16; j++ {
		dst[j] = float32(qs[j]&0x0F)*d + m
	}
	for j := 16; j < n; j++ {
		dst[j] = float32(qs[j-16]>>4)*d + m
	}
}

// dequantQ2_K dequantizes a Q2_K super-block (84 bytes -> up to 256
// values). Format: 16 bytes sub-block scale/min nibbles + 64 bytes
// 2-bit quants + f16 scale-of-scales + f16 scale-of-mins. The 256
// weights split into 16 sub-blocks of 16; sub-block b uses
// scale = d*(sm[b]&0xF), min = dmin*(sm[b]>>4). Weight = quant*scale - min.
func dequantQ2_K(src []byte, dst []float32, n int) {
	sm := src[0:16]
	qs := src[16:80]
	d := HalfToF32(leUint16(src[80:82]))
	dmin := HalfToF32(leUint16(src[82:84]))

	idx := 0
	for b := 0; b < 16 && idx < n; b++ {
		sc := sm[b]
		scale := d * float32(sc&0xF)
		min := dmin * float32(sc>>4)
		base := b * 16
		for i := 0; i < 16 && idx < n; i++ {
			weightIdx := base + i
			byteIdx := (weightIdx % 32) + (weightIdx/128)*32
			shift := uint((weightIdx % 128 / 32)) * 2
			q := (qs[byteIdx] >> shift) & 3
			dst[idx] = float32(q)*scale - min
			idx++
		}
	}
}

// getScaleMinK4 extracts a 6-bit scale and min from the Q4_K 12-byte
// packed scales array. j is the sub-block index (0..7).
func getScaleMinK4(j int, scales []byte) (sc, m uint8) {
	if j < 4 {
		sc = scales[j] & 63
		m = scales[j+4] & 63
	} else {
		sc = (scales[j+4] & 0xF) | ((scales[j-4] >> 6) << 4)
		m = (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	}
	return
}

// dequantQ4_K dequantizes a Q4_K super-block (144 bytes -> up to 256
// values). Format: f16 sscale (2) + f16 mscale (2) + 12 bytes packed
// scales/mins + 128 bytes nibbles. Eight sub-blocks of 32 values share
// 32 payload bytes in pairs: the first sub-block of a pair is the low
// nibbles, the second the high nibbles.
func dequantQ4_K(src []byte, dst []float32, n int) {
	sscale := HalfToF32(leUint16(src[0:2]))
	mscale := HalfToF32(leUint16(src[2:4]))
	scales := src[4:16]
	qs := src[16:]

	idx := 0
	for pair := 0; pair < 4 && idx < n; pair++ {
		j := pair * 2
		sc1, m1 := getScaleMinK4(j, scales)
		d1 := sscale * float32(sc1)
		min1 := mscale * float32(m1)

		sc2, m2 := getScaleMinK4(j+1, scales)
		d2 := sscale * float32(sc2)
		min2 := mscale * float32(m2)

		qoff := pair * 32
		for l := 0; l < 32 && idx < n; l++ {
			dst[idx] = d1*float32(qs[qoff+l]&0xF) - min1
			idx++
		}
		for l := 0; l < 32 && idx < n; l++ {
			dst[idx] = d2*float32(qs[qoff+l]>>4) - min2
			idx++
		}
	}
}

// dequantQ6_K dequantizes a Q6_K super-block (210 bytes -> up to 256
// values). Format: 128 bytes low nibbles + 64 bytes high 2-bit planes +
// 16 signed sub-scales + f16 super-scale. Two 128-weight clusters per
// super-block; within a cluster, weight j combines a 4-bit low and 2-bit
// high field into a 6-bit unsigned value centered by -32.
func dequantQ6_K(src []byte, dst []float32, n int) {
	d := HalfToF32(leUint16(src[208:210]))

	idx := 0
	lOff, hOff, scOff := 0, 128, 192
	for cluster := 0; cluster < 2 && idx < n; cluster++ {
		l := src[lOff : lOff+64]
		h := src[hOff : hOff+32]
		sc := src[scOff : scOff+8]
		for j := 0; j < 128 && idx < n; j++ {
			lo := (l[j%64] >> uint((j/64)*4)) & 0xF
			hi := (h[j%32] >> uint((j/32)*2)) & 0x3
			q := int8(lo|hi<<4) - 32
			dst[idx] = d * float32(int8(sc[j/16])) * float32(q)
			idx++
		}
		lOff += 64
		hOff += 32
		scOff += 8
	}
}
