package shortcode_test

import (
	"sync"
	"testing"

	"github.com/SergeiKhy/urlefy/internal/shortcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerator_GeneratesValidUniqueCodes проверяет 10 000 кодов из нескольких горутин
func TestGenerator_GeneratesValidUniqueCodes(t *testing.T) {
	gen := shortcode.NewGenerator()

	const (
		workers   = 10
		perWorker = 1000
	)

	var (
		mu    sync.Mutex
		codes = make(map[string]struct{}, workers*perWorker)
		wg    sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				code, err := gen.Generate()
				assert.NoError(t, err)
				local = append(local, code)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, code := range local {
				codes[code] = struct{}{}
			}
		}()
	}
	wg.Wait()

	require.Len(t, codes, workers*perWorker, "все коды должны быть уникальными")
	for code := range codes {
		assert.NoError(t, shortcode.Validate(code), "код должен проходить валидацию: %s", code)
	}
}

// TestGenerator_CounterPrefix проверяет, что префикс кода растёт вместе со счётчиком
func TestGenerator_CounterPrefix(t *testing.T) {
	gen := shortcode.NewGeneratorWithSeed(61)

	first, err := gen.Generate()
	require.NoError(t, err)
	second, err := gen.Generate()
	require.NoError(t, err)

	// 62 -> "10", 63 -> "11", плюс два случайных символа
	assert.Len(t, first, 4)
	assert.Equal(t, "10", first[:2])
	assert.Equal(t, "11", second[:2])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{name: "min length", code: "abc", valid: true},
		{name: "max length", code: "abcdefghijkl", valid: true},
		{name: "dash and underscore", code: "my-code_1", valid: true},
		{name: "too short", code: "ab", valid: false},
		{name: "too long", code: "abcdefghijklm", valid: false},
		{name: "bad charset", code: "bad@code", valid: false},
		{name: "space", code: "bad code", valid: false},
		{name: "empty", code: "", valid: false},
		{name: "reserved", code: "metrics", valid: false},
		{name: "reserved upper", code: "API", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := shortcode.Validate(tt.code)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, shortcode.ErrInvalidCode)
			}
		})
	}
}

func TestIsReserved(t *testing.T) {
	for _, code := range []string{"", "  ", "index.html", "favicon.ico", "robots.txt", "Favicon.ICO"} {
		assert.True(t, shortcode.IsReserved(code), code)
	}
	assert.False(t, shortcode.IsReserved("abc123"))
}
