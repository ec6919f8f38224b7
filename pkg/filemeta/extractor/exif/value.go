package exif

import (
	"fmt"
	"math"

	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

// Rational is a RATIONAL or SRATIONAL component
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Float returns the quotient, or 0 for a zero denominator
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// fromNative converts a value decoded by go-exif. Single components are
// returned as scalars.
func fromNative(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return append([]byte(nil), x...)
	case []uint16:
		return toInt(x)
	case []uint32:
		return toInt(x)
	case []int32:
		return toInt(x)
	case []exifcommon.Rational:
		out := make([]Rational, len(x))
		for i, r := range x {
			out[i] = Rational{Num: int64(r.Numerator), Den: int64(r.Denominator)}
		}
		return scalar(out)
	case []exifcommon.SignedRational:
		out := make([]Rational, len(x))
		for i, r := range x {
			out[i] = Rational{Num: int64(r.Numerator), Den: int64(r.Denominator)}
		}
		return scalar(out)
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return scalar(out)
	case []float64:
		return scalar(append([]float64(nil), x...))
	}
	return v
}

func toInt[T uint16 | uint32 | int32](vals []T) any {
	out := make([]int, len(vals))
	for i, n := range vals {
		out[i] = int(n)
	}
	return scalar(out)
}

func scalar[T any](vals []T) any {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}

// toNative converts v into the slice go-exif encodes for an entry of type t
func toNative(t exifcommon.TagTypePrimitive, v any) (any, error) {
	invalid := func() (any, error) {
		return nil, fmt.Errorf("%w: cannot store %T in a %s entry", filemeta.ErrInvalidValue, v, t)
	}

	switch t {
	case exifcommon.TypeAscii, exifcommon.TypeAsciiNoNul:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return invalid()

	case exifcommon.TypeByte:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
		ints, ok := toInts(v)
		if !ok {
			return invalid()
		}
		out := make([]byte, len(ints))
		for i, n := range ints {
			if err := checkRange(t, n, 0, math.MaxUint8); err != nil {
				return nil, err
			}
			out[i] = byte(n)
		}
		return out, nil

	case exifcommon.TypeShort:
		ints, ok := toInts(v)
		if !ok {
			return invalid()
		}
		out := make([]uint16, len(ints))
		for i, n := range ints {
			if err := checkRange(t, n, 0, math.MaxUint16); err != nil {
				return nil, err
			}
			out[i] = uint16(n)
		}
		return out, nil

	case exifcommon.TypeLong:
		ints, ok := toInts(v)
		if !ok {
			return invalid()
		}
		out := make([]uint32, len(ints))
		for i, n := range ints {
			if err := checkRange(t, n, 0, math.MaxUint32); err != nil {
				return nil, err
			}
			out[i] = uint32(n)
		}
		return out, nil

	case exifcommon.TypeSignedLong:
		ints, ok := toInts(v)
		if !ok {
			return invalid()
		}
		out := make([]int32, len(ints))
		for i, n := range ints {
			if err := checkRange(t, n, math.MinInt32, math.MaxInt32); err != nil {
				return nil, err
			}
			out[i] = int32(n)
		}
		return out, nil

	case exifcommon.TypeRational:
		rats, ok := toRationals(v)
		if !ok {
			return invalid()
		}
		out := make([]exifcommon.Rational, len(rats))
		for i, r := range rats {
			if checkRange(t, r.Num, 0, math.MaxUint32) != nil || checkRange(t, r.Den, 0, math.MaxUint32) != nil {
				return nil, fmt.Errorf("%w: %s out of range for %s", filemeta.ErrInvalidValue, r, t)
			}
			out[i] = exifcommon.Rational{Numerator: uint32(r.Num), Denominator: uint32(r.Den)}
		}
		return out, nil

	case exifcommon.TypeSignedRational:
		rats, ok := toRationals(v)
		if !ok {
			return invalid()
		}
		out := make([]exifcommon.SignedRational, len(rats))
		for i, r := range rats {
			if checkRange(t, r.Num, math.MinInt32, math.MaxInt32) != nil || checkRange(t, r.Den, math.MinInt32, math.MaxInt32) != nil {
				return nil, fmt.Errorf("%w: %s out of range for %s", filemeta.ErrInvalidValue, r, t)
			}
			out[i] = exifcommon.SignedRational{Numerator: int32(r.Num), Denominator: int32(r.Den)}
		}
		return out, nil

	case exifcommon.TypeFloat:
		floats, ok := toFloats(v)
		if !ok {
			return invalid()
		}
		out := make([]float32, len(floats))
		for i, f := range floats {
			out[i] = float32(f)
		}
		return out, nil

	case exifcommon.TypeDouble:
		floats, ok := toFloats(v)
		if !ok {
			return invalid()
		}
		return floats, nil
	}
	return invalid()
}

func checkRange(t exifcommon.TagTypePrimitive, n, lo, hi int64) error {
	if n < lo || n > hi {
		return fmt.Errorf("%w: %d out of range for %s", filemeta.ErrInvalidValue, n, t)
	}
	return nil
}

func toInts(v any) ([]int64, bool) {
	switch x := v.(type) {
	case int:
		return []int64{int64(x)}, true
	case int8:
		return []int64{int64(x)}, true
	case int16:
		return []int64{int64(x)}, true
	case int32:
		return []int64{int64(x)}, true
	case int64:
		return []int64{x}, true
	case uint8:
		return []int64{int64(x)}, true
	case uint16:
		return []int64{int64(x)}, true
	case uint32:
		return []int64{int64(x)}, true
	case []int64:
		return x, true
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, true
	}
	return nil, false
}

func toRationals(v any) ([]Rational, bool) {
	switch x := v.(type) {
	case Rational:
		return []Rational{x}, true
	case []Rational:
		return x, true
	}
	if ints, ok := toInts(v); ok {
		out := make([]Rational, len(ints))
		for i, n := range ints {
			out[i] = Rational{Num: n, Den: 1}
		}
		return out, true
	}
	return nil, false
}

func toFloats(v any) ([]float64, bool) {
	switch x := v.(type) {
	case float64:
		return []float64{x}, true
	case float32:
		return []float64{float64(x)}, true
	case []float64:
		return x, true
	}
	if ints, ok := toInts(v); ok {
		out := make([]float64, len(ints))
		for i, n := range ints {
			out[i] = float64(n)
		}
		return out, true
	}
	return nil, false
}
