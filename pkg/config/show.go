package config

import "github.com/jwhector/yggdrasil/internal/domain/entities/show"

// DefaultRowLabels and DefaultRowOptions seed a fresh show when no other
// song-tree definition is supplied. A real deployment overrides these via
// IMPORT_STATE or a future show-authoring endpoint (spec §9 Open Question:
// song-tree content is out of scope for this service).
var DefaultRowLabels = []string{"Verse", "Chorus", "Bridge", "Outro"}

func defaultOptions() []show.Option {
	return []show.Option{
		{ID: 0, Label: "Option A"},
		{ID: 1, Label: "Option B"},
		{ID: 2, Label: "Option C"},
		{ID: 3, Label: "Option D"},
	}
}

// BuildShowConfig assembles a show.Config from the process's env-driven
// timing and coup defaults.
func BuildShowConfig() show.Config {
	rowOptions := make([][]show.Option, len(DefaultRowLabels))
	for i := range rowOptions {
		rowOptions[i] = defaultOptions()
	}

	return show.Config{
		RowLabels:  DefaultRowLabels,
		RowOptions: rowOptions,
		Coup: show.CoupConfig{
			Threshold:       CoupThreshold,
			MultiplierBonus: CoupMultiplierBonus,
		},
		Timing: show.TimingConfig{
			AuditionPerOptionMs: AuditionPerOptionMs,
			VotingWindowMs:      VotingWindowMs,
			RevealDurationMs:    RevealDurationMs,
			CoupWindowMs:        CoupWindowMs,
		},
	}
}
