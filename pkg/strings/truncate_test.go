package strings

import (
	"testing"
)

func TestTruncateDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "short string unchanged",
			input:    "succeeded",
			maxLen:   20,
			expected: "succeeded",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxLen:   5,
			expected: "hello",
		},
		{
			name:     "long string truncated",
			input:    "Service Broker failed to bind within the required time.",
			maxLen:   15,
			expected: "Service Brok...",
		},
		{
			name:     "newlines collapsed to spaces",
			input:    "provisioning\nnode pool",
			maxLen:   30,
			expected: "provisioning node pool",
		},
		{
			name:     "multiple whitespace collapsed",
			input:    "in \t  progress\r\n",
			maxLen:   20,
			expected: "in progress",
		},
		{
			name:     "unicode truncation safe",
			input:    "日本語テスト文字列",
			maxLen:   6,
			expected: "日本語...",
		},
		{
			name:     "whitespace only becomes empty",
			input:    "   \n\t  ",
			maxLen:   10,
			expected: "",
		},
		{
			name:     "maxLen clamped to minimum",
			input:    "hello",
			maxLen:   0,
			expected: "h...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateDescription(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("TruncateDescription(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestTruncateDescription_RuneLength(t *testing.T) {
	// Truncation must respect rune count, not byte count.
	input := "日本語テスト" // 6 characters, 18 bytes in UTF-8
	result := TruncateDescription(input, 5)

	expected := "日本..."
	if result != expected {
		t.Errorf("Expected %q but got %q", expected, result)
	}

	runeCount := 0
	for range result {
		runeCount++
	}
	if runeCount != 5 {
		t.Errorf("Expected 5 runes but got %d", runeCount)
	}
}
