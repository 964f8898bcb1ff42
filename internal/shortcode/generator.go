// Package shortcode генерирует и проверяет короткие коды.
package shortcode

import (
	"errors"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet base62 алфавит для счётчика и случайного суффикса
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	MinLength = 3
	MaxLength = 12

	defaultSuffixLength = 2
)

var ErrInvalidCode = errors.New("invalid short code")

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reserved пути, которые обслуживает сам сервис или браузеры запрашивают автоматически
var reserved = map[string]struct{}{
	"index.html":  {},
	"favicon.ico": {},
	"robots.txt":  {},
	"metrics":     {},
	"api":         {},
}

// Generator выдаёт коды вида base62(counter) + random suffix.
// Счётчик даёт уникальность внутри процесса, суффикс делает коды непредсказуемыми.
type Generator struct {
	counter      atomic.Uint64
	suffixLength int
}

// NewGenerator создаёт генератор со счётчиком, засеянным текущим временем
func NewGenerator() *Generator {
	return NewGeneratorWithSeed(uint64(time.Now().UnixMilli()))
}

func NewGeneratorWithSeed(seed uint64) *Generator {
	g := &Generator{suffixLength: defaultSuffixLength}
	g.counter.Store(seed)
	return g
}

// Generate безопасен для конкурентного вызова
func (g *Generator) Generate() (string, error) {
	n := g.counter.Add(1)

	suffix, err := gonanoid.Generate(Alphabet, g.suffixLength)
	if err != nil {
		return "", err
	}

	return encodeBase62(n) + suffix, nil
}

func encodeBase62(n uint64) string {
	if n == 0 {
		return string(Alphabet[0])
	}

	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// Validate проверяет длину, набор символов и зарезервированные имена.
// Одинаково применяется к сгенерированным и пользовательским кодам.
func Validate(code string) error {
	if len(code) < MinLength || len(code) > MaxLength {
		return ErrInvalidCode
	}
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	if IsReserved(code) {
		return ErrInvalidCode
	}
	return nil
}

// IsReserved true для пустых и служебных путей
func IsReserved(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return true
	}
	_, ok := reserved[strings.ToLower(code)]
	return ok
}
