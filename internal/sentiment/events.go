package sentiment

import (
	"fmt"
	"strings"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
)

const whaleTransferThreshold = 50

type eventRule struct {
	keywords []string
	kind     models.EventKind
	severity models.EventSeverity
	impact   float64
}

var eventRules = []eventRule{
	{
		keywords: []string{"hack", "hacked", "exploit", "breach", "stolen", "drained"},
		kind:     models.EventHack,
		severity: models.SeverityCritical,
		impact:   -9,
	},
	{
		keywords: []string{"lawsuit", "ban", "banned", "crackdown", "subpoena", "indictment"},
		kind:     models.EventRegulatory,
		severity: models.SeverityHigh,
		impact:   -6,
	},
	{
		keywords: []string{"partnership", "partners with", "integration with"},
		kind:     models.EventPartnership,
		severity: models.SeverityMedium,
		impact:   5,
	},
	{
		keywords: []string{"listing", "listed on", "lists"},
		kind:     models.EventListing,
		severity: models.SeverityMedium,
		impact:   4,
	},
}

// ExtractEvents scans the structured fields of each reading for
// high-impact occurrences: title keywords and large-transfer counts.
func ExtractEvents(readings []*models.SourceReading) []*models.CriticalEvent {
	events := make([]*models.CriticalEvent, 0)
	now := time.Now().UnixMilli()

	for _, reading := range readings {
		if reading == nil || reading.Raw == nil {
			continue
		}

		if titles, ok := reading.Raw["titles"].([]string); ok {
			seen := make(map[models.EventKind]bool)

			for _, title := range titles {
				lower := strings.ToLower(title)

				for _, rule := range eventRules {
					if seen[rule.kind] {
						continue
					}

					for _, keyword := range rule.keywords {
						if strings.Contains(lower, keyword) {
							events = append(events, &models.CriticalEvent{
								Kind:        rule.kind,
								Severity:    rule.severity,
								Impact:      rule.impact,
								Source:      reading.Source,
								Time:        now,
								Description: title,
							})
							seen[rule.kind] = true
							break
						}
					}
				}
			}
		}

		if transfers, ok := reading.Raw["large_transfers"].(float64); ok && transfers >= whaleTransferThreshold {
			events = append(events, &models.CriticalEvent{
				Kind:        models.EventWhaleMove,
				Severity:    models.SeverityHigh,
				Impact:      -3,
				Source:      reading.Source,
				Time:        now,
				Description: fmt.Sprintf("%d large transfers observed", int(transfers)),
			})
		}
	}

	return events
}

// hasForcedSell reports whether the events force a defensive signal: a
// hack or a critical regulatory event.
func hasForcedSell(events []*models.CriticalEvent) bool {
	for _, event := range events {
		if event.Kind == models.EventHack {
			return true
		}
		if event.Kind == models.EventRegulatory && event.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
