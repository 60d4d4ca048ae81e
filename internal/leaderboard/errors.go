package leaderboard

import "fmt"

func errInvalidWeight(raw string) error {
	return fmt.Errorf("leaderboard: invalid weight %q", raw)
}

func errInvalidInterval(raw string) error {
	return fmt.Errorf("leaderboard: invalid interval %q", raw)
}
