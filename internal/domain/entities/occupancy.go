package entities

// OccupancyTier is the discrete busy-ness classification of a posto,
// derived on read from its service wait signals and never stored.
type OccupancyTier string

const (
	OccupancyLow    OccupancyTier = "low"
	OccupancyMedium OccupancyTier = "medium"
	OccupancyHigh   OccupancyTier = "high"
	OccupancyFull   OccupancyTier = "full"
)

// Tier thresholds in minutes of waiting time. The signal unit is the
// persisted per-service waiting time; there is no percentage scale.
const (
	occupancyMediumMinutes = 30
	occupancyHighMinutes   = 65
	occupancyFullMinutes   = 95
)

// ClassifyOccupancy maps a posto's services to an occupancy tier using
// the maximum reported waiting time in minutes. Services without a
// waiting time are ignored; with no signals at all the posto is Low.
func ClassifyOccupancy(services []Service) OccupancyTier {
	max := -1
	for _, svc := range services {
		if svc.WaitingTime == nil {
			continue
		}
		if *svc.WaitingTime > max {
			max = *svc.WaitingTime
		}
	}

	switch {
	case max > occupancyFullMinutes:
		return OccupancyFull
	case max >= occupancyHighMinutes:
		return OccupancyHigh
	case max >= occupancyMediumMinutes:
		return OccupancyMedium
	default:
		return OccupancyLow
	}
}
