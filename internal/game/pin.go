package game

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	pinMin = 100000
	pinMax = 999999
)

// PinGenerator produces 6-digit join codes. Uniqueness among active sessions
// is the coordinator's job; this only draws candidates.
type PinGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPinGenerator() *PinGenerator {
	return &PinGenerator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Generate returns a random PIN in "100000".."999999".
func (g *PinGenerator) Generate() string {
	g.mu.Lock()
	n := pinMin + g.rnd.Intn(pinMax-pinMin+1)
	g.mu.Unlock()
	return itoa6(n)
}

func itoa6(n int) string {
	buf := [6]byte{}
	for i := 5; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[:])
}

// CleanPIN strips whitespace from user-entered PINs.
func CleanPIN(pin string) string {
	return strings.Join(strings.Fields(pin), "")
}

// ValidPIN reports whether pin is exactly six digits after cleaning.
func ValidPIN(pin string) bool {
	cleaned := CleanPIN(pin)
	if len(cleaned) != 6 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatPIN renders a PIN for display with a space in the middle ("123 456").
func FormatPIN(pin string) string {
	if len(pin) != 6 {
		return pin
	}
	return pin[:3] + " " + pin[3:]
}
