package template

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Source is the random source behind every simulated outcome
type Source interface {
	Float64() float64
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a goroutine-safe source seeded with seed
func NewSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSource returns a source seeded from the current time
func NewTimeSource() Source {
	return NewSource(time.Now().UnixNano())
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Fixed is a Source that replays the given floats in order, repeating the last one.
// Intn scales the current float into [0,n).
type Fixed struct {
	mu     sync.Mutex
	values []float64
	pos    int
}

// NewFixed creates a Fixed source
func NewFixed(values ...float64) *Fixed {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Fixed{values: values}
}

func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.values[f.pos]
	if f.pos < len(f.values)-1 {
		f.pos++
	}
	return v
}

func (f *Fixed) Intn(n int) int {
	v := int(f.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var playerNames = []string{"QuizMaster", "BrainStorm", "Genius", "Scholar", "Thinker", "Challenger"}

var chatMessages = []string{
	"Good luck everyone!",
	"This is fun!",
	"That was a tough one!",
	"Great job!",
	"I'm ready!",
	"Let's go!",
	"Nice score!",
	"Almost had it!",
}

var taskStatuses = []string{"todo", "in_progress", "done", "blocked"}

// RandomString returns length characters from the alphanumeric charset
func RandomString(src Source, length int) string {
	return pick(src, alphanumeric, length)
}

// JoinCode returns a 6-character upper-case lobby code
func JoinCode(src Source) string {
	return pick(src, codeCharset, 6)
}

// RandomInt returns an integer in [min,max]
func RandomInt(src Source, min, max int) int {
	if min >= max {
		return min
	}
	return src.Intn(max-min+1) + min
}

// PlayerName returns a bot player name such as "Scholar42"
func PlayerName(src Source) string {
	return playerNames[src.Intn(len(playerNames))] + strconv.Itoa(src.Intn(100))
}

// ChatMessage returns a canned chat line
func ChatMessage(src Source) string {
	return chatMessages[src.Intn(len(chatMessages))]
}

// TaskStatus returns a random task board status
func TaskStatus(src Source) string {
	return taskStatuses[src.Intn(len(taskStatuses))]
}

func pick(src Source, charset string, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(charset[src.Intn(len(charset))])
	}
	return b.String()
}
