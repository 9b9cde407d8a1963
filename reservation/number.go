package reservation

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

const maxDailySequence = 9999

var numberPattern = regexp.MustCompile(`^GP-\d{8}-\d{4}$`)

// ValidNumber reports whether s is a well-formed reservation number.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}

// FormatNumber renders GP-YYYYMMDD-NNNN.
func FormatNumber(day time.Time, seq int) (string, error) {
	if seq < 1 || seq > maxDailySequence {
		return "", fmt.Errorf("reservation sequence %d out of range for %s", seq, day.Format("20060102"))
	}
	return fmt.Sprintf("GP-%s-%04d", day.Format("20060102"), seq), nil
}

func (s *Service) nextNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.In(s.loc)
	seq, err := s.store.NextSequence(ctx, day.Format(DateLayout))
	if err != nil {
		return "", fmt.Errorf("next reservation sequence: %w", err)
	}
	return FormatNumber(day, seq)
}
