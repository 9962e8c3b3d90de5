package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// formatVector renders a float32 slice as a pgvector literal, e.g.
// "[0.1,0.2,0.3]".
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector reads a pgvector literal back into a float32 slice.
func parseVector(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '[' || text[len(text)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}
	inner := text[1 : len(text)-1]
	if inner == "" {
		return nil, nil
	}

	parts := strings.Split(inner, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector element %q: %w", part, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
