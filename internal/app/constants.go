package app

const (
	Name            = "isxgo"
	SourceURL       = "https://git.skobk.in/skobkin/isxgo"
	ConfigFilename  = "config.yaml"
	DBFilename      = "runs.db"
	LogFilename     = "isxctl.log"
	MetricsFilename = "isx3.prom"
	RecentRunsLoad  = 20
)
