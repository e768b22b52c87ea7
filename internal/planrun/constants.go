package planrun

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	DefaultLegalFloor    = 7
)

// File permission constants.
const (
	logFilePermission   = 0600
	directoryPermission = 0750
)

// Fixture shape constants.
const (
	centersPerCompany = 3
	blockedDays       = 4
	teamCap           = 3
	siteCap           = 6
	hourlyCostMin     = 18
	hourlyCostRange   = 28
	noCostEvery       = 7
)
