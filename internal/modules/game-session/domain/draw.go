package domain

import "math/rand"

// Drawer picks a winning number in [MinNumber, MaxNumber].
type Drawer func() int

func UniformDrawer() int {
	return MinNumber + rand.Intn(MaxNumber-MinNumber+1)
}
