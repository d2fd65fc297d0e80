package main

import (
	"math/rand"
	"sync"
	"time"
)

// diceRoller is the only source of randomness in the game. Seedable so
// tests can script exact rolls.
type diceRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newDiceRoller(seed int64) *diceRoller {
	return &diceRoller{rng: rand.New(rand.NewSource(seed))}
}

func newDefaultDiceRoller() *diceRoller {
	return newDiceRoller(time.Now().UnixNano())
}

// roll returns a uniform value in [1,6].
func (d *diceRoller) roll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return 1 + d.rng.Intn(6)
}
