package services

import (
	"fmt"
	"regexp"
	"strconv"
)

// Period is a working window in HH:MM bounds.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Appointment slots are a fixed half hour.
const slotInterval = 30

// Work hours are free text typed by the clinic ("8h às 18h", "08 - 17h").
// Only whole hours are understood; minutes in the text are ignored.
var workHoursPattern = regexp.MustCompile(`(?i)(\d{1,2})h?\s*(?:às|ás|as|[-–])\s*(\d{1,2})h?`)

// ParseWorkHours extracts the professional's daily working period from the
// free-text work hours field. An unparseable text yields no periods, which
// in turn yields no bookable slots.
func ParseWorkHours(text string) []Period {
	match := workHoursPattern.FindStringSubmatch(text)
	if match == nil {
		return []Period{}
	}

	start, err1 := strconv.Atoi(match[1])
	end, err2 := strconv.Atoi(match[2])
	if err1 != nil || err2 != nil || start < 0 || start > 23 || end < 0 || end > 24 {
		return []Period{}
	}

	return []Period{{
		Start: fmt.Sprintf("%02d:00", start),
		End:   fmt.Sprintf("%02d:00", end),
	}}
}

// GenerateSlots expands working periods into half-hour appointment slots,
// end exclusive: "08:00 às 10:00" yields 08:00, 08:30, 09:00, 09:30.
func GenerateSlots(periods []Period) []string {
	slots := []string{}
	for _, period := range periods {
		current := period.Start
		for current < period.End {
			slots = append(slots, current)
			current = addMinutes(current, slotInterval)
		}
	}
	return slots
}

func addMinutes(clock string, minutes int) string {
	var h, m int
	fmt.Sscanf(clock, "%d:%d", &h, &m)
	total := h*60 + m + minutes
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
