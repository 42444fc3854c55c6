package suggestion

import (
	"context"
	"fmt"
	"math"
	"sort"

	"service-intake/internal/correction"
	"service-intake/internal/models"
)

// Bracket is a budget band in XAF.
type Bracket string

const (
	BracketLow    Bracket = "low"    // under 10 000
	BracketMedium Bracket = "medium" // 10 000 to 25 000
	BracketHigh   Bracket = "high"   // 25 000 and above
)

func BracketFor(price float64) Bracket {
	switch {
	case price < 10000:
		return BracketLow
	case price < 25000:
		return BracketMedium
	default:
		return BracketHigh
	}
}

func (e *Engine) alternativeServices(ctx context.Context, req Request) ([]models.Suggestion, error) {
	if req.Query == "" {
		return nil, nil
	}
	matches, err := e.catalog.SearchServices(ctx, req.Query, 5)
	if err != nil {
		return nil, err
	}
	out := make([]models.Suggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.Suggestion{
			Kind:        models.AlternativeService,
			Priority:    priorityFor(m.Score),
			ServiceCode: m.Service.Code,
			Title:       m.Service.Name,
			Description: m.Service.Description,
			Confidence:  m.Score,
			Reasoning:   "Correspond à votre recherche",
			Metadata:    map[string]interface{}{"relevance": m.Score},
		})
	}
	return out, nil
}

func (e *Engine) nearbyZones(ctx context.Context, req Request) ([]models.Suggestion, error) {
	if req.ZoneCode == "" {
		return nil, nil
	}
	origin, err := e.catalog.GetZone(ctx, req.ZoneCode)
	if err != nil {
		return nil, err
	}
	if origin.Latitude == 0 && origin.Longitude == 0 {
		return nil, nil
	}
	zones, err := e.catalog.ListZones(ctx)
	if err != nil {
		return nil, err
	}

	excluded := ancestors(zones, origin)
	excluded[origin.Code] = true

	var wanted map[string]bool
	if req.Query != "" {
		matches, err := e.catalog.SearchServices(ctx, req.Query, 5)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			wanted = make(map[string]bool, len(matches))
			for _, m := range matches {
				wanted[m.Service.Code] = true
			}
		}
	}

	type candidate struct {
		zone      models.Zone
		distance  float64
		available []string
	}
	var candidates []candidate
	for _, z := range zones {
		if excluded[z.Code] || (z.Latitude == 0 && z.Longitude == 0) {
			continue
		}
		d := Haversine(origin.Latitude, origin.Longitude, z.Latitude, z.Longitude)
		if d > e.cfg.NearbyRadiusKm {
			continue
		}

		var available []string
		if wanted != nil {
			rows, err := e.catalog.ZoneAvailability(ctx, z.Code)
			if err != nil {
				return nil, err
			}
			for _, a := range rows {
				if wanted[a.ServiceCode] {
					available = append(available, a.ServiceCode)
				}
			}
			if len(available) == 0 {
				continue
			}
		}
		candidates = append(candidates, candidate{zone: z, distance: d, available: available})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].zone.Code < candidates[j].zone.Code
	})

	out := make([]models.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		priority := models.PriorityLow
		switch {
		case c.distance <= 5:
			priority = models.PriorityHigh
		case c.distance <= 15:
			priority = models.PriorityMedium
		}
		meta := map[string]interface{}{"distance_km": math.Round(c.distance*10) / 10}
		if c.available != nil {
			meta["available_services"] = c.available
		}
		out = append(out, models.Suggestion{
			Kind:        models.NearbyZone,
			Priority:    priority,
			ZoneCode:    c.zone.Code,
			Title:       c.zone.Name,
			Description: fmt.Sprintf("À %.1f km de %s", c.distance, origin.Name),
			Confidence:  math.Max(0.1, 1-c.distance/e.cfg.NearbyRadiusKm),
			Reasoning:   "Zone proche où le service est disponible",
			Metadata:    meta,
		})
	}
	return out, nil
}

func ancestors(zones []models.Zone, z models.Zone) map[string]bool {
	byCode := make(map[string]models.Zone, len(zones))
	for _, zone := range zones {
		byCode[zone.Code] = zone
	}
	out := make(map[string]bool)
	for parent := z.ParentCode; parent != "" && !out[parent]; {
		out[parent] = true
		parent = byCode[parent].ParentCode
	}
	return out
}

func (e *Engine) similarServices(ctx context.Context, req Request) ([]models.Suggestion, error) {
	if req.Query == "" {
		return nil, nil
	}
	services, err := e.catalog.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Suggestion
	for _, svc := range services {
		sim := correction.WordOverlap(req.Query, svc.Name+" "+svc.Description)
		if sim < e.cfg.SimilarThreshold {
			continue
		}
		out = append(out, models.Suggestion{
			Kind:        models.SimilarService,
			Priority:    priorityFor(sim),
			ServiceCode: svc.Code,
			Title:       svc.Name,
			Description: svc.Description,
			Confidence:  sim,
			Reasoning:   "Description proche de votre demande",
			Metadata:    map[string]interface{}{"word_overlap": sim},
		})
	}
	return out, nil
}

func (e *Engine) popularServices(ctx context.Context, _ Request) ([]models.Suggestion, error) {
	services, err := e.catalog.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	var popular []models.Service
	for _, svc := range services {
		if svc.TotalBookings > 0 {
			popular = append(popular, svc)
		}
	}
	sort.SliceStable(popular, func(i, j int) bool {
		if popular[i].TotalBookings != popular[j].TotalBookings {
			return popular[i].TotalBookings > popular[j].TotalBookings
		}
		return popular[i].AvgRating > popular[j].AvgRating
	})
	if len(popular) > 5 {
		popular = popular[:5]
	}

	out := make([]models.Suggestion, 0, len(popular))
	for _, svc := range popular {
		out = append(out, models.Suggestion{
			Kind:        models.PopularService,
			Priority:    models.PriorityLow,
			ServiceCode: svc.Code,
			Title:       svc.Name,
			Description: svc.Description,
			Confidence:  math.Min(1, svc.AvgRating/5),
			Reasoning:   fmt.Sprintf("%d réservations, note %.1f/5", svc.TotalBookings, svc.AvgRating),
			Metadata: map[string]interface{}{
				"total_bookings": svc.TotalBookings,
				"avg_rating":     svc.AvgRating,
			},
		})
	}
	return out, nil
}

func (e *Engine) historicalPreferences(ctx context.Context, req Request) ([]models.Suggestion, error) {
	if req.UserID == "" || e.history == nil {
		return nil, nil
	}
	recent, err := e.history.Recent(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, code := range recent {
		if counts[code] == 0 {
			order = append(order, code)
		}
		counts[code]++
	}

	var out []models.Suggestion
	for _, code := range order {
		n := counts[code]
		if n < e.cfg.HistoryMinCount {
			continue
		}
		svc, err := e.catalog.GetService(ctx, code)
		if err != nil {
			continue
		}
		out = append(out, models.Suggestion{
			Kind:        models.HistoricalPreference,
			Priority:    models.PriorityMedium,
			ServiceCode: svc.Code,
			Title:       svc.Name,
			Description: svc.Description,
			Confidence:  math.Min(1, float64(n)/10),
			Reasoning:   fmt.Sprintf("Vous avez déjà demandé ce service %d fois", n),
			Metadata:    map[string]interface{}{"count": n},
		})
	}
	return out, nil
}

func (e *Engine) priceBased(ctx context.Context, req Request) ([]models.Suggestion, error) {
	bracket := req.Bracket
	if bracket == "" && req.Budget > 0 {
		bracket = BracketFor(req.Budget)
	}
	if bracket == "" {
		return nil, nil
	}
	services, err := e.catalog.ListServices(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Suggestion
	for _, svc := range services {
		base := svc.BasePrice()
		if BracketFor(base) != bracket {
			continue
		}
		out = append(out, models.Suggestion{
			Kind:        models.PriceBased,
			Priority:    models.PriorityLow,
			ServiceCode: svc.Code,
			Title:       svc.Name,
			Description: fmt.Sprintf("Environ %.0f FCFA", base),
			Confidence:  math.Min(1, svc.AvgRating/5),
			Reasoning:   "Dans votre budget",
			Metadata:    map[string]interface{}{"base_price": base, "bracket": string(bracket)},
		})
	}
	return out, nil
}

func (e *Engine) availabilityBased(ctx context.Context, req Request) ([]models.Suggestion, error) {
	if req.ZoneCode == "" {
		return nil, nil
	}
	rows, err := e.catalog.ZoneAvailability(ctx, req.ZoneCode)
	if err != nil {
		return nil, err
	}

	var out []models.Suggestion
	for _, a := range rows {
		if !a.Active || a.AvgResponseMinutes >= e.cfg.AvailabilityMaxMinutes {
			continue
		}
		svc, err := e.catalog.GetService(ctx, a.ServiceCode)
		if err != nil {
			continue
		}
		priority := models.PriorityMedium
		if a.AvgResponseMinutes <= 30 {
			priority = models.PriorityHigh
		}
		out = append(out, models.Suggestion{
			Kind:        models.AvailabilityBased,
			Priority:    priority,
			ServiceCode: svc.Code,
			ZoneCode:    a.ZoneCode,
			Title:       svc.Name,
			Description: fmt.Sprintf("Intervention en %.0f min en moyenne", a.AvgResponseMinutes),
			Confidence:  math.Max(0.1, 1-a.AvgResponseMinutes/e.cfg.AvailabilityMaxMinutes),
			Reasoning:   "Disponible rapidement dans votre zone",
			Metadata:    map[string]interface{}{"avg_response_minutes": a.AvgResponseMinutes},
		})
	}
	return out, nil
}
