package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/zone"
)

// FormatReading renders a zone reading for a status line.
func FormatReading(r zone.Reading) string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Name, r.Err)
	}

	s := fmt.Sprintf("%s: %s", r.Name, r.Temp)
	for _, t := range r.Crossed {
		s += " [" + t.Name + "]"
	}
	return s
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FormatTrips renders trips one per line as "name temp hysteresis type".
func FormatTrips(trips []config.TripConfig) string {
	lines := make([]string, len(trips))
	for i, t := range trips {
		lines[i] = fmt.Sprintf("%s %d %d %s", t.Name, t.Temp, t.Hysteresis, t.Type)
	}
	return strings.Join(lines, "\n")
}

// ParseTrips parses the output of FormatTrips. Blank lines are skipped.
func ParseTrips(s string) ([]config.TripConfig, error) {
	var trips []config.TripConfig
	for n, line := range strings.Split(s, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		if len(f) != 4 {
			return nil, fmt.Errorf("trip line %d: want name, temp, hysteresis and type", n+1)
		}
		temp, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fmt.Errorf("trip line %d: bad temperature: %w", n+1, err)
		}
		hyst, err := strconv.Atoi(f[2])
		if err != nil || hyst < 0 {
			return nil, fmt.Errorf("trip line %d: bad hysteresis %q", n+1, f[2])
		}
		trips = append(trips, config.TripConfig{Name: f[0], Temp: temp, Hysteresis: hyst, Type: f[3]})
	}
	return trips, nil
}
