package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/DoyleJ11/scouting-backend/internal/models"
)

// Record is a sanitized scan, ready to store.
type Record = models.MatchData

const DefaultQuantifier = "Prac"

// Sanitize trims strings and coerces numbers. Unparseable numbers become 0.
func Sanitize(r Raw) Record {
	num := func(key string) int {
		n, _ := r.Int(key)
		return n
	}

	quantifier := strings.TrimSpace(r.String("quantifier"))
	if quantifier == "" {
		quantifier = DefaultQuantifier
	}

	return Record{
		TeamNumber:  num("teamNumber"),
		Event:       strings.TrimSpace(r.String("comp_code")),
		MatchNumber: num("matchNumber"),
		ScoutName:   strings.TrimSpace(r.String("name")),
		Quantifier:  quantifier,

		StartPos:      num("startPos"),
		MissedAuto:    num("missed_auto"),
		AutoLeave:     num("autoLeave"),
		AutoNet:       num("autoNet"),
		AutoProcessor: num("autoProcessor"),
		AutoRemoved:   num("autoRemoved"),
		AutoPath:      autoPath(r["autoPath"]),
		AutoL1:        num("autoL1"),
		AutoL2:        num("autoL2"),
		AutoL3:        num("autoL3"),
		AutoL4:        num("autoL4"),

		TeleNet:       num("telenet"),
		TeleProcessor: num("teleProcessor"),
		TeleRemoved:   num("teleRemoved"),
		TeleL1:        num("teleL1"),
		TeleL2:        num("teleL2"),
		TeleL3:        num("teleL3"),
		TeleL4:        num("teleL4"),

		Climb:          num("endClimb"),
		DriverRanking:  num("driverRanking"),
		DefenseRanking: num("defenseRanking"),
		Comment:        strings.TrimSpace(r.String("comment")),
		IsBroken:       num("isBroken"),
		IsDisabled:     num("isDisabled"),
		IsTipped:       num("isTipped"),
	}
}

func autoPath(v any) models.Path {
	switch t := v.(type) {
	case []any:
		var p models.Path
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					p = append(p, s)
				}
			}
		}
		return p
	case []string:
		return models.ParsePath(strings.Join(t, ","))
	case string:
		return models.ParsePath(t)
	default:
		return nil
	}
}

// Fingerprint identifies a record's content, ignoring its ID and timestamps.
func Fingerprint(rec Record) string {
	rec.ID = ""
	b, _ := json.Marshal(rec)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
