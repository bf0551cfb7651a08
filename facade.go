package gguf

// TensorToFloat32 dequantizes a tensor's raw payload into a dense float32
// array of ti.NumElements() values. Native F32 data is copied directly;
// F16/BF16 are converted element-wise; other quantized types go through
// their block decoder. Returns ErrUnsupportedType if the tensor's type
// has no decoder, or ErrOutOfMemory if the output buffer cannot be
// allocated (practically: if the computed length is absurd enough to
// indicate a corrupt descriptor).
func TensorToFloat32(ti TensorInfo, raw []byte) ([]float32, error) {
	n := int(ti.NumElements())
	if n < 0 {
		return nil, ErrOutOfMemory
	}

	switch ti.Type {
	case TensorTypeF32:
		if len(raw) < n*4 {
			return nil, ErrTruncated
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = leFloat32(raw[i*4 : i*4+4])
		}
		return out, nil
	case TensorTypeF16:
		if len(raw) < n*2 {
			return nil, ErrTruncated
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = HalfToF32(leUint16(raw[i*2 : i*2+2]))
		}
		return out, nil
	case TensorTypeBF16:
		if len(raw) < n*2 {
			return nil, ErrTruncated
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = BFloat16ToF32(leUint16(raw[i*2 : i*2+2]))
		}
		return out, nil
	}

	dequant, err := GetDequantFunc(ti.Type)
	if err != nil {
		return nil, err
	}

	bs := ti.Type.BlockSize()
	ts := ti.Type.TypeSize()
	out := make([]float32, n)
	produced := 0
	for srcOff := 0; produced < n; srcOff += ts {
		if srcOff+ts > len(raw) {
			return nil, ErrTruncated
		}
		remain := n - produced
		if remain > bs {
			remain = bs
		}
		dequant(raw[srcOff:srcOff+ts], out[produced:produced+remain], remain)
		produced += remain
	}
	return out, nil
}

// TensorToFloat16 dequantizes a tensor into half-precision values (as
// raw uint16 bit patterns), narrowing from the float32 decode via
// F32ToHalf.
func TensorToFloat16(ti TensorInfo, raw []byte) ([]uint16, error) {
	f32, err := TensorToFloat32(ti, raw)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(f32))
	for i, v := range f32 {
		out[i] = F32ToHalf(v)
	}
	return out, nil
}

// TensorToBFloat16 dequantizes a tensor into bfloat16 values (as raw
// uint16 bit patterns), narrowing from the float32 decode via
// F32ToBFloat16.
func TensorToBFloat16(ti TensorInfo, raw []byte) ([]uint16, error) {
	f32, err := TensorToFloat32(ti, raw)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(f32))
	for i, v := range f32 {
		out[i] = F32ToBFloat16(v)
	}
	return out, nil
}
