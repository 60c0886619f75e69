package backup

import (
	"encoding/json"
	"strings"

	"github.com/glizzus/mustard/internal/schedule"
	"github.com/glizzus/mustard/internal/util"
)

// scheduleUpdate is the canonical form of every historical schedule shape.
// Nil fields were not part of the shape and are left as they are.
type scheduleUpdate struct {
	Timezone    *string
	Weekly      *schedule.WeeklySchedule
	TweetOffset *int
}

type scheduleDecoder struct {
	name    string
	section string
	matches func(items []json.RawMessage) bool
	decode  func(items []json.RawMessage) (scheduleUpdate, error)
}

// scheduleDecoders are tried in order; the first whose section and shape
// match decodes the value. Backups in the wild use all of these shapes.
var scheduleDecoders = []scheduleDecoder{
	{
		name:    "schedule v2",
		section: "schedule",
		matches: func(items []json.RawMessage) bool {
			return len(items) == 9 && weekShaped(items) && jsonKind(items[7]) == '"' && jsonKind(items[8]) == '0'
		},
		decode: func(items []json.RawMessage) (scheduleUpdate, error) {
			update, err := decodeWeekAndZone(items)
			if err != nil {
				return update, err
			}
			offset, ok := decodeInt(items[8])
			if !ok {
				return update, invalidf("tweet offset must be a whole number")
			}
			update.TweetOffset = &offset
			return update, nil
		},
	},
	{
		name:    "schedule v1",
		section: "schedule",
		matches: func(items []json.RawMessage) bool {
			return len(items) == 8 && weekShaped(items) && jsonKind(items[7]) == '"'
		},
		decode: decodeWeekAndZone,
	},
	{
		name:    "twitter_config v1",
		section: "twitter_config",
		matches: func(items []json.RawMessage) bool {
			return len(items) == 1 && jsonKind(items[0]) == '0'
		},
		decode: func(items []json.RawMessage) (scheduleUpdate, error) {
			offset, ok := decodeInt(items[0])
			if !ok {
				return scheduleUpdate{}, invalidf("tweet offset must be a whole number")
			}
			return scheduleUpdate{TweetOffset: &offset}, nil
		},
	},
}

func decodeScheduleSection(section string, raw json.RawMessage) (scheduleUpdate, string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return scheduleUpdate{}, "", invalidf("%s must be a list", section)
	}

	decoder, ok := util.FindFirst(scheduleDecoders, func(d scheduleDecoder) bool {
		return d.section == section && d.matches(items)
	})
	if !ok {
		return scheduleUpdate{}, "", invalidf("%s has an unrecognised shape", section)
	}

	update, err := decoder.decode(items)
	if err != nil {
		return update, decoder.name, prefixInvalid(err, "%s", section)
	}
	return update, decoder.name, nil
}

// jsonKind classifies a raw value by its first byte: '"' string, '[' list,
// '{' object, '0' number, 'n' null, 't'/'f' bool.
func jsonKind(raw json.RawMessage) byte {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return 0
	}
	c := trimmed[0]
	if c == '-' || (c >= '0' && c <= '9') {
		return '0'
	}
	return c
}

func weekShaped(items []json.RawMessage) bool {
	for _, item := range items[:schedule.DaysPerWeek] {
		if k := jsonKind(item); k != '[' && k != '"' {
			return false
		}
	}
	return true
}

func decodeWeekAndZone(items []json.RawMessage) (scheduleUpdate, error) {
	var weekly schedule.WeeklySchedule
	for day := range schedule.DaysPerWeek {
		entries, err := decodeDay(items[day])
		if err != nil {
			return scheduleUpdate{}, prefixInvalid(err, "day %d", day)
		}
		weekly[day] = entries
	}

	var tz string
	if err := json.Unmarshal(items[7], &tz); err != nil {
		return scheduleUpdate{}, invalidf("timezone must be a string")
	}
	tz = strings.TrimSpace(tz)
	if _, err := schedule.LoadLocation(tz); err != nil {
		return scheduleUpdate{}, invalidf("unknown timezone %q", tz)
	}

	return scheduleUpdate{Timezone: &tz, Weekly: &weekly}, nil
}

// decodeDay accepts a list of "HH:MM" strings or the older single string of
// space-separated entries.
func decodeDay(raw json.RawMessage) ([]string, error) {
	var entries []string
	if jsonKind(raw) == '"' {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, invalidf("not a string")
		}
		entries = strings.Fields(joined)
	} else if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, invalidf("must be a list of times")
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if _, _, err := schedule.ParseTimeOfDay(entry); err != nil {
			return nil, invalidf("%v", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
