package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
)

var markupReplacer = strings.NewReplacer("<", "_", ">", "_")

// SanitizePlayer strips angle brackets from a player identity so it can never
// be rendered as markup downstream.
func SanitizePlayer(raw string) (string, error) {
	player := strings.TrimSpace(raw)
	if player == "" {
		return "", fmt.Errorf("%w: empty player identity", apperror.ErrMalformedInput)
	}

	return markupReplacer.Replace(player), nil
}
