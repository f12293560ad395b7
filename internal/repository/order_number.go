package repository

import (
	"strings"

	"github.com/google/uuid"
)

const orderNumberAttempts = 5

// newOrderNumber returns a short, human-shareable order reference such as
// ORD-3FA9C0D2.
func newOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:8])
}
