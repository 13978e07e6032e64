package export

import (
	"context"

	"github.com/skobkin/isxgo/internal/persistence"
)

// StoreSink saves runs to the SQLite run store.
type StoreSink struct {
	Repo *persistence.RunRepo
}

func (s StoreSink) Name() string {
	return "sqlite"
}

func (s StoreSink) Write(ctx context.Context, rec Record) error {
	setup, err := rec.SetupJSON()
	if err != nil {
		return err
	}

	report := rec.Report
	run := persistence.Run{
		ID:              report.RunID.String(),
		Port:            rec.Port,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		Spectra:         int(report.Spectra),
		FrequencyPoints: report.FrequencyPoints,
		Expected:        report.Expected,
		Received:        report.Received(),
		TimedOut:        report.TimedOut,
		StopStatus:      report.StopAck.Code,
		SetupJSON:       setup,
	}

	return s.Repo.Save(ctx, run, report.Results)
}
