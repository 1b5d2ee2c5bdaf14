package model

// NumberValue normalises a Go number into a value: floating point types
// become DoubleValue and integral types LongValue. The second result is
// false for anything that is not a number.
func NumberValue(n any) (Value, bool) {
	switch v := n.(type) {
	case float64:
		return DoubleValue(v), true
	case float32:
		return DoubleValue(v), true
	case int:
		return LongValue(v), true
	case int8:
		return LongValue(v), true
	case int16:
		return LongValue(v), true
	case int32:
		return LongValue(v), true
	case int64:
		return LongValue(v), true
	case uint:
		return LongValue(v), true // #nosec G115 - intentional wraparound
	case uint8:
		return LongValue(v), true
	case uint16:
		return LongValue(v), true
	case uint32:
		return LongValue(v), true
	case uint64:
		return LongValue(v), true // #nosec G115 - intentional wraparound
	case LongValue:
		return v, true
	case DoubleValue:
		return v, true
	default:
		return nil, false
	}
}
