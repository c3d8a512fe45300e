package cmd

import (
	"strconv"
	"strings"
)

func parseIntArg(s string) (int, error) {
	return strconv.Atoi(s)
}

// parseVector parses a comma-separated list of floats, e.g. "1,2,3".
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(v))
	}
	return out, nil
}
