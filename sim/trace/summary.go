package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalPlans         int
	WarmupPlans        int
	UnderfilledPlans   int
	ChosenChunks       int
	MeanChosen         float64
	MaxChosen          int
	RequiredBytes      int64
	FreedBytes         int64
	FillRatio          float64        // FreedBytes / RequiredBytes; 0 when nothing was requested
	DeviceDistribution map[string]int // device → number of plans
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		DeviceDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalPlans = len(st.Evictions)
	for _, r := range st.Evictions {
		if r.Warmup {
			summary.WarmupPlans++
		}
		if r.Underfilled() {
			summary.UnderfilledPlans++
		}
		summary.ChosenChunks += len(r.Chosen)
		if len(r.Chosen) > summary.MaxChosen {
			summary.MaxChosen = len(r.Chosen)
		}
		summary.RequiredBytes += r.RequiredBytes
		summary.FreedBytes += r.FreedBytes
		summary.DeviceDistribution[r.Device]++
	}

	if summary.TotalPlans > 0 {
		summary.MeanChosen = float64(summary.ChosenChunks) / float64(summary.TotalPlans)
	}
	if summary.RequiredBytes > 0 {
		summary.FillRatio = float64(summary.FreedBytes) / float64(summary.RequiredBytes)
	}

	return summary
}
