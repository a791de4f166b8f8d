package choreo

import (
	"encoding/json"
	"math"
)

// WireDecimals is the precision every float is rounded to before publishing.
const WireDecimals = 2

// Gains are the heading controller constants sent with swim moves.
type Gains struct {
	Kp float64
	Kd float64
}

// Encode builds the self-contained wire message for cmd.
func Encode(cmd Command, gains Gains) map[string]any {
	msg := make(map[string]any, len(cmd.Extra)+6)
	for k, v := range cmd.Extra {
		if k == "Kp" || k == "Kd" {
			// gains only ever come from Gains, and only on swim moves
			continue
		}
		msg[k] = deepCopy(v)
	}

	msg["type"] = cmd.Type.Wire()
	msg["dur_ms"] = cmd.DurMs
	if cmd.Heading != nil {
		msg["heading"] = *cmd.Heading
	}
	if cmd.DutyRight != nil {
		msg["duty_right"] = *cmd.DutyRight
	}
	if cmd.DutyLeft != nil {
		msg["duty_left"] = *cmd.DutyLeft
	}
	if cmd.Type == Swim {
		msg["Kp"] = gains.Kp
		msg["Kd"] = gains.Kd
	}

	return RoundFloats(msg, WireDecimals).(map[string]any)
}

// Marshal encodes cmd and serializes it to JSON.
func Marshal(cmd Command, gains Gains) ([]byte, error) {
	return json.Marshal(Encode(cmd, gains))
}

// RoundFloats returns a copy of v with every float leaf rounded to places
// decimals. Maps and slices are rebuilt with the same shape; other leaves are
// returned as-is.
func RoundFloats(v any, places int) any {
	switch t := v.(type) {
	case float64:
		return roundTo(t, places)
	case float32:
		return float32(roundTo(float64(t), places))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = RoundFloats(item, places)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = RoundFloats(item, places)
		}
		return out
	case []float64:
		out := make([]float64, len(t))
		for i, item := range t {
			out[i] = roundTo(item, places)
		}
		return out
	default:
		return v
	}
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
