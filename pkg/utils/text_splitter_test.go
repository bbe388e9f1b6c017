package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextSplitterValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: 1000, overlap: 200},
		{name: "zero overlap", size: 10, overlap: 0},
		{name: "overlap equals size", size: 10, overlap: 10, wantErr: true},
		{name: "negative overlap", size: 10, overlap: -1, wantErr: true},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTextSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	splitter, err := NewTextSplitter(1000, 200)
	require.NoError(t, err)

	assert.Empty(t, splitter.Split(""))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	splitter, err := NewTextSplitter(1000, 200)
	require.NoError(t, err)

	chunks := splitter.Split("The sky is blue. Grass is green.")
	assert.Equal(t, []string{"The sky is blue. Grass is green."}, chunks)
}

func TestSplitCoversEveryCharacter(t *testing.T) {
	inputs := map[string]string{
		"prose":      strings.Repeat("Retrieval augmented generation grounds answers in documents. ", 120),
		"paragraphs": strings.Repeat("First paragraph line.\nSecond line here.\n\n", 150),
		"no spaces":  strings.Repeat("abcdefghij", 450),
		"multibyte":  strings.Repeat("日本語のテキスト、検索拡張生成。 ", 200),
	}

	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			splitter, err := NewTextSplitter(1000, 200)
			require.NoError(t, err)

			chunks := splitter.Split(text)
			require.NotEmpty(t, chunks)

			// Consecutive chunks share exactly the overlap, so stitching them
			// back together must reproduce the input.
			var rebuilt []rune
			for i, chunk := range chunks {
				runes := []rune(chunk)
				assert.LessOrEqual(t, len(runes), 1000, "chunk %d too long", i)
				if i == 0 {
					rebuilt = append(rebuilt, runes...)
					continue
				}
				require.Greater(t, len(runes), 200, "chunk %d does not advance", i)
				assert.Equal(t, string(rebuilt[len(rebuilt)-200:]), string(runes[:200]))
				rebuilt = append(rebuilt, runes[200:]...)
			}
			assert.Equal(t, text, string(rebuilt))
		})
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight nine ten\n", 80)
	splitter, err := NewTextSplitter(300, 50)
	require.NoError(t, err)

	assert.Equal(t, splitter.Split(text), splitter.Split(text))
}

func TestSplitWithoutBreaksCutsAtChunkSize(t *testing.T) {
	chunks := SplitText(strings.Repeat("x", 25), 10, 3)

	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = len(c)
	}
	assert.Equal(t, []int{10, 10, 10, 4}, lengths)
}

func TestSplitPrefersWhitespaceBoundary(t *testing.T) {
	chunks := SplitText("alpha beta gamma delta", 12, 0)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "alpha beta ", chunks[0])
	assert.Equal(t, "alpha beta gamma delta", strings.Join(chunks, ""))
}
